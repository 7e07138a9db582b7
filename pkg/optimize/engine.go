package optimize

import "context"

// ExchangeParams are the per-symbol exchange constraints the engine rounds
// orders against. Invariant across a run.
type ExchangeParams struct {
	QtyStep   float64 `json:"qty_step" yaml:"qty_step"`
	PriceStep float64 `json:"price_step" yaml:"price_step"`
	MinQty    float64 `json:"min_qty" yaml:"min_qty"`
	MinCost   float64 `json:"min_cost" yaml:"min_cost"`
	CMult     float64 `json:"c_mult" yaml:"c_mult"`
}

// BacktestParams are the run-wide simulation settings. Invariant across a
// run.
type BacktestParams struct {
	StartingBalance float64  `json:"starting_balance" yaml:"starting_balance"`
	MakerFee        float64  `json:"maker_fee" yaml:"maker_fee"`
	Symbols         []string `json:"symbols" yaml:"symbols"`
}

// Analysis is the statistics record the engine distills from one simulated
// run. All fields the scoring and constraint logic reads are here.
type Analysis struct {
	ADG                   float64 `json:"adg"`
	MDG                   float64 `json:"mdg"`
	SharpeRatio           float64 `json:"sharpe_ratio"`
	DrawdownWorst         float64 `json:"drawdown_worst"`
	EquityBalanceDiffMean float64 `json:"equity_balance_diff_mean"`
	EquityBalanceDiffMax  float64 `json:"equity_balance_diff_max"`
	LossProfitRatio       float64 `json:"loss_profit_ratio"`
}

// Metric returns an analysis field by its serialized name. The second
// return is false for unknown names.
func (a *Analysis) Metric(name string) (float64, bool) {
	switch name {
	case "adg":
		return a.ADG, true
	case "mdg":
		return a.MDG, true
	case "sharpe_ratio":
		return a.SharpeRatio, true
	case "drawdown_worst":
		return a.DrawdownWorst, true
	case "equity_balance_diff_mean":
		return a.EquityBalanceDiffMean, true
	case "equity_balance_diff_max":
		return a.EquityBalanceDiffMax, true
	case "loss_profit_ratio":
		return a.LossProfitRatio, true
	}
	return 0, false
}

// Fill is one simulated trade fill.
type Fill struct {
	Step    int     `json:"step"`
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Qty     float64 `json:"qty"`
	Price   float64 `json:"price"`
	PnL     float64 `json:"pnl"`
	Fee     float64 `json:"fee"`
	Balance float64 `json:"balance"`
}

// Result is everything one engine run returns.
type Result struct {
	Fills    []Fill
	Equities []float64
	Analysis Analysis
}

// Engine runs one backtest over the staged arrays with a decoded
// configuration. Implementations must be deterministic, side-effect free
// and safe for concurrent calls; the optimizer treats the engine as a pure
// function of its inputs.
type Engine interface {
	Backtest(ctx context.Context, hlcs *HLCArray, preferred *PreferenceArray, config *StrategyConfig, exchange []ExchangeParams, params BacktestParams) (*Result, error)
}
