// Package backtest provides a deterministic reference engine for parameter
// optimization: a compact long/short grid simulator over staged price
// history, plus the statistics derived from its balance and equity series.
package backtest

import (
	"context"
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/trend"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/optibot/pkg/optimize"
)

const defaultStepsPerDay = 1440

// ============================================================================
// ENGINE
// ============================================================================

// Config holds the engine settings that describe the data rather than the
// strategy under test.
type Config struct {
	StepsPerDay int // candles per day, defaults to 1440 (one-minute candles)
	Logger      zerolog.Logger
}

// Engine simulates a two-sided grid strategy: initial entries at the EMA
// band, grid reentries below (above) the last entry, and a full close at a
// minimum markup from the average entry price. Every Backtest call keeps its
// state on its own stack, so a single Engine serves concurrent workers.
type Engine struct {
	stepsPerDay int
	log         zerolog.Logger
}

// New creates a reference engine.
func New(cfg Config) *Engine {
	stepsPerDay := cfg.StepsPerDay
	if stepsPerDay <= 0 {
		stepsPerDay = defaultStepsPerDay
	}
	return &Engine{stepsPerDay: stepsPerDay, log: cfg.Logger}
}

// Backtest runs the simulation over the staged arrays and returns fills, the
// equity series and the derived statistics.
func (e *Engine) Backtest(ctx context.Context, hlcs *optimize.HLCArray, preferred *optimize.PreferenceArray, config *optimize.StrategyConfig, exchange []optimize.ExchangeParams, params optimize.BacktestParams) (*optimize.Result, error) {
	steps, coins := hlcs.Steps(), hlcs.Coins()
	if len(exchange) != coins {
		return nil, fmt.Errorf("%d exchange params for %d markets", len(exchange), coins)
	}
	if len(params.Symbols) != coins {
		return nil, fmt.Errorf("%d symbols for %d markets", len(params.Symbols), coins)
	}
	if params.StartingBalance <= 0 {
		return nil, fmt.Errorf("starting balance must be positive, got %v", params.StartingBalance)
	}

	sim := &simulation{
		hlcs:      hlcs,
		preferred: preferred,
		exchange:  exchange,
		symbols:   params.Symbols,
		makerFee:  params.MakerFee,
		steps:     steps,
		coins:     coins,
		long:      newSideState(sideParamsFrom(config.Long), coins),
		short:     newSideState(sideParamsFrom(config.Short), coins),
		balance:   params.StartingBalance,
		balances:  make([]float64, steps),
		equities:  make([]float64, steps),
	}
	sim.buildBands()

	if err := sim.run(ctx); err != nil {
		return nil, err
	}

	e.log.Debug().
		Int("steps", steps).
		Int("markets", coins).
		Int("fills", len(sim.fills)).
		Float64("final_balance", sim.balance).
		Msg("simulation finished")

	return &optimize.Result{
		Fills:    sim.fills,
		Equities: sim.equities,
		Analysis: Analyze(sim.balances, sim.equities, sim.fills, e.stepsPerDay),
	}, nil
}

// ============================================================================
// STRATEGY PARAMETERS
// ============================================================================

// sideParams is the parameter subset the simulator reads for one side.
// Missing keys fall back to defaults so partial templates stay runnable.
type sideParams struct {
	emaSpan0         float64
	emaSpan1         float64
	initialQtyPct    float64
	gridSpacing      float64
	doubleDownFactor float64
	nPositions       int
	exposureLimit    float64
	minMarkup        float64
}

func sideParamsFrom(m map[string]float64) sideParams {
	p := sideParams{
		emaSpan0:         param(m, "ema_span_0", 1440),
		emaSpan1:         param(m, "ema_span_1", 1440),
		initialQtyPct:    param(m, "entry_initial_qty_pct", 0.01),
		gridSpacing:      param(m, "entry_grid_spacing_pct", 0.06),
		doubleDownFactor: param(m, "entry_grid_double_down_factor", 1.0),
		exposureLimit:    param(m, "wallet_exposure_limit", 1.0),
		minMarkup:        param(m, "close_grid_min_markup", 0.005),
	}
	p.nPositions = int(math.Round(param(m, "n_positions", 1)))
	return p
}

func param(m map[string]float64, name string, fallback float64) float64 {
	if v, ok := m[name]; ok {
		return v
	}
	return fallback
}

// enabled reports whether the side trades at all.
func (p sideParams) enabled() bool {
	return p.nPositions > 0 && p.exposureLimit > 0 && p.initialQtyPct > 0
}

// perPositionExposure is the side's exposure limit split across its slots.
func (p sideParams) perPositionExposure() float64 {
	return p.exposureLimit / float64(p.nPositions)
}

// ============================================================================
// EMA BANDS
// ============================================================================

// emaBand is the envelope of the EMAs over a side's two configured spans and
// their geometric mean.
type emaBand struct {
	series [3][]float64
	offset [3]int
}

func newEmaBand(closes []float64, span0, span1 float64) emaBand {
	spans := [3]int{
		emaSpanSteps(span0),
		emaSpanSteps(math.Sqrt(span0 * span1)),
		emaSpanSteps(span1),
	}
	var band emaBand
	for i, span := range spans {
		band.series[i] = emaSeries(closes, span)
		band.offset[i] = span - 1
	}
	return band
}

// ready reports whether every EMA in the band has warmed up at the step.
func (b *emaBand) ready(step int) bool {
	for i := range b.series {
		if step < b.offset[i] || step-b.offset[i] >= len(b.series[i]) {
			return false
		}
	}
	return true
}

// bounds returns the lowest and highest EMA value at the step.
func (b *emaBand) bounds(step int) (lower, upper float64) {
	lower = math.Inf(1)
	upper = math.Inf(-1)
	for i := range b.series {
		v := b.series[i][step-b.offset[i]]
		lower = math.Min(lower, v)
		upper = math.Max(upper, v)
	}
	return lower, upper
}

func emaSpanSteps(span float64) int {
	if span < 1 {
		return 1
	}
	return int(math.Round(span))
}

// emaSeries computes an EMA over the closes. The indicator starts emitting
// once its first period completes, so the result is period-1 values shorter
// than the input.
func emaSeries(closes []float64, period int) []float64 {
	in := make(chan float64, len(closes))
	for _, v := range closes {
		in <- v
	}
	close(in)

	ema := trend.NewEmaWithPeriod[float64](period)
	out := make([]float64, 0, len(closes))
	for v := range ema.Compute(in) {
		out = append(out, v)
	}
	return out
}

// ============================================================================
// SIMULATION
// ============================================================================

// position is one side's open position in a single market.
type position struct {
	qty       float64
	avgPrice  float64
	lastEntry float64
}

func (p *position) open() bool { return p.qty > 0 }

func (p *position) add(qty, price float64) {
	cost := p.qty*p.avgPrice + qty*price
	p.qty += qty
	p.avgPrice = cost / p.qty
	p.lastEntry = price
}

// sideState carries one side's parameters, bands and open positions.
type sideState struct {
	params    sideParams
	bands     []emaBand
	positions []position
	open      int
}

func newSideState(params sideParams, coins int) sideState {
	return sideState{params: params, positions: make([]position, coins)}
}

// simulation is the per-call state of one backtest run.
type simulation struct {
	hlcs      *optimize.HLCArray
	preferred *optimize.PreferenceArray
	exchange  []optimize.ExchangeParams
	symbols   []string
	makerFee  float64

	steps int
	coins int

	long  sideState
	short sideState

	balance  float64
	balances []float64
	equities []float64
	fills    []optimize.Fill
	bankrupt bool
}

// buildBands precomputes the EMA envelopes for every enabled side and market.
func (s *simulation) buildBands() {
	var closes [][]float64
	materialize := func() {
		if closes != nil {
			return
		}
		closes = make([][]float64, s.coins)
		for c := 0; c < s.coins; c++ {
			series := make([]float64, s.steps)
			for t := 0; t < s.steps; t++ {
				series[t] = s.hlcs.At(t, c, optimize.HLCClose)
			}
			closes[c] = series
		}
	}

	for _, side := range []*sideState{&s.long, &s.short} {
		if !side.params.enabled() {
			continue
		}
		materialize()
		side.bands = make([]emaBand, s.coins)
		for c := 0; c < s.coins; c++ {
			side.bands[c] = newEmaBand(closes[c], side.params.emaSpan0, side.params.emaSpan1)
		}
	}
}

func (s *simulation) run(ctx context.Context) error {
	for t := 0; t < s.steps; t++ {
		if t%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if !s.bankrupt {
			s.step(t)
		}
		s.mark(t)
	}
	return nil
}

func (s *simulation) step(t int) {
	for c := 0; c < s.coins; c++ {
		if s.long.params.enabled() {
			s.stepMarket(t, c, &s.long, 1)
		}
		if s.short.params.enabled() {
			s.stepMarket(t, c, &s.short, -1)
		}
	}
}

// stepMarket advances one side in one market: close at markup when the candle
// reaches the close price, otherwise grid reentry, otherwise an initial entry
// at the EMA band if the market is preferred and a slot is free. dir is +1
// for long, -1 for short.
func (s *simulation) stepMarket(t, c int, side *sideState, dir float64) {
	xp := s.exchange[c]
	p := &side.positions[c]
	low := s.hlcs.At(t, c, optimize.HLCLow)
	high := s.hlcs.At(t, c, optimize.HLCHigh)

	if p.open() {
		closePrice := p.avgPrice * (1 + dir*side.params.minMarkup)
		if dir > 0 {
			closePrice = roundUp(closePrice, xp.PriceStep)
			if high > closePrice {
				s.close(t, c, side, dir, closePrice)
				return
			}
		} else {
			closePrice = roundDn(closePrice, xp.PriceStep)
			if closePrice > 0 && low < closePrice {
				s.close(t, c, side, dir, closePrice)
				return
			}
		}

		reentry := p.lastEntry * (1 - dir*side.params.gridSpacing)
		qty := roundDn(p.qty*side.params.doubleDownFactor, xp.QtyStep)
		if dir > 0 {
			reentry = roundDn(reentry, xp.PriceStep)
			if low < reentry {
				s.enter(t, c, side, dir, reentry, qty)
			}
		} else {
			reentry = roundUp(reentry, xp.PriceStep)
			if high > reentry {
				s.enter(t, c, side, dir, reentry, qty)
			}
		}
		return
	}

	// initial entries quote off the previous step's band so the decision
	// never sees the current candle's close
	prev := t - 1
	if prev < 0 || side.open >= side.params.nPositions || !s.preferredAt(t, c) || !side.bands[c].ready(prev) {
		return
	}
	lower, upper := side.bands[c].bounds(prev)
	var price float64
	if dir > 0 {
		price = roundDn(lower, xp.PriceStep)
		if low >= price {
			return
		}
	} else {
		price = roundUp(upper, xp.PriceStep)
		if high <= price {
			return
		}
	}
	cost := s.balance * side.params.perPositionExposure() * side.params.initialQtyPct
	qty := roundDn(cost/(price*cmult(xp)), xp.QtyStep)
	s.enter(t, c, side, dir, price, qty)
}

// enter adds to a position after the exchange filters: quantity and cost
// minimums, and the side's per-position exposure cap.
func (s *simulation) enter(t, c int, side *sideState, dir float64, price, qty float64) {
	xp := s.exchange[c]
	if price <= 0 || qty <= 0 || qty < xp.MinQty {
		return
	}
	cost := qty * price * cmult(xp)
	if xp.MinCost > 0 && cost < xp.MinCost {
		return
	}
	p := &side.positions[c]
	if (p.qty*p.avgPrice+qty*price)*cmult(xp) > s.balance*side.params.perPositionExposure() {
		return
	}

	wasOpen := p.open()
	p.add(qty, price)
	if !wasOpen {
		side.open++
	}
	fee := cost * s.makerFee
	s.balance -= fee
	s.record(t, c, sideLabel(dir, "entry"), qty, price, 0, fee)
}

// close realizes the whole position at the given price.
func (s *simulation) close(t, c int, side *sideState, dir float64, price float64) {
	xp := s.exchange[c]
	p := &side.positions[c]
	pnl := dir * (price - p.avgPrice) * p.qty * cmult(xp)
	fee := p.qty * price * cmult(xp) * s.makerFee
	s.balance += pnl - fee
	s.record(t, c, sideLabel(dir, "close"), p.qty, price, pnl, fee)
	*p = position{}
	side.open--
}

func (s *simulation) record(t, c int, label string, qty, price, pnl, fee float64) {
	s.fills = append(s.fills, optimize.Fill{
		Step:    t,
		Symbol:  s.symbols[c],
		Side:    label,
		Qty:     qty,
		Price:   price,
		PnL:     pnl,
		Fee:     fee,
		Balance: s.balance,
	})
}

// mark records the step's balance and equity. Equity at or below zero is a
// bankruptcy: trading stops and the equity series stays pinned at zero.
func (s *simulation) mark(t int) {
	if s.bankrupt {
		s.balances[t] = s.balance
		s.equities[t] = 0
		return
	}

	equity := s.balance
	for c := 0; c < s.coins; c++ {
		price := s.hlcs.At(t, c, optimize.HLCClose)
		mult := cmult(s.exchange[c])
		if p := s.long.positions[c]; p.open() {
			equity += (price - p.avgPrice) * p.qty * mult
		}
		if p := s.short.positions[c]; p.open() {
			equity += (p.avgPrice - price) * p.qty * mult
		}
	}
	if equity <= 0 {
		equity = 0
		s.bankrupt = true
	}
	s.balances[t] = s.balance
	s.equities[t] = equity
}

// preferredAt reports whether the market is in the step's preferred set.
func (s *simulation) preferredAt(t, c int) bool {
	for j := 0; j < s.preferred.Slots(); j++ {
		if int(s.preferred.At(t, j)) == c {
			return true
		}
	}
	return false
}

func sideLabel(dir float64, event string) string {
	if dir > 0 {
		return "long_" + event
	}
	return "short_" + event
}

// ============================================================================
// EXCHANGE ROUNDING
// ============================================================================

func cmult(xp optimize.ExchangeParams) float64 {
	if xp.CMult <= 0 {
		return 1
	}
	return xp.CMult
}

func roundDn(x, step float64) float64 {
	if step <= 0 {
		return x
	}
	return math.Floor(x/step+1e-9) * step
}

func roundUp(x, step float64) float64 {
	if step <= 0 {
		return x
	}
	return math.Ceil(x/step-1e-9) * step
}
