package backtest

import (
	"math"
	"sort"

	"github.com/ajitpratap0/optibot/pkg/optimize"
)

// ============================================================================
// ANALYSIS STATISTICS
// ============================================================================

// Analyze derives the optimizer's statistics from a run's balance and equity
// series and its fills. Gains are measured between daily samples of the
// equity series; drawdown is measured against the running equity peak.
func Analyze(balances, equities []float64, fills []optimize.Fill, stepsPerDay int) optimize.Analysis {
	gains := dailyGains(equities, stepsPerDay)
	mean, std := meanStd(gains)

	a := optimize.Analysis{
		ADG:           mean,
		MDG:           median(gains),
		DrawdownWorst: worstDrawdown(equities),
	}
	if std > 0 {
		a.SharpeRatio = mean / std
	}
	a.EquityBalanceDiffMean, a.EquityBalanceDiffMax = equityBalanceDiff(balances, equities)
	a.LossProfitRatio = lossProfitRatio(fills)
	return a
}

// dailyGains samples the equity series once per day, keeping the final step,
// and returns the relative gain between consecutive samples.
func dailyGains(equities []float64, stepsPerDay int) []float64 {
	if len(equities) == 0 || stepsPerDay <= 0 {
		return nil
	}

	var samples []float64
	for i := 0; i < len(equities); i += stepsPerDay {
		samples = append(samples, equities[i])
	}
	if (len(equities)-1)%stepsPerDay != 0 {
		samples = append(samples, equities[len(equities)-1])
	}

	gains := make([]float64, 0, len(samples))
	for i := 1; i < len(samples); i++ {
		if samples[i-1] <= 0 {
			continue
		}
		gains = append(gains, samples[i]/samples[i-1]-1)
	}
	return gains
}

// worstDrawdown is the largest relative drop below the running equity peak.
func worstDrawdown(equities []float64) float64 {
	worst := 0.0
	peak := math.Inf(-1)
	for _, eq := range equities {
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			if dd := (peak - eq) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// equityBalanceDiff aggregates the relative distance between equity and
// balance over the run. A large distance means exposure is carried as
// unrealized positions instead of realized balance.
func equityBalanceDiff(balances, equities []float64) (mean, max float64) {
	n := 0
	sum := 0.0
	for i := range balances {
		if balances[i] <= 0 {
			continue
		}
		d := math.Abs(equities[i]-balances[i]) / balances[i]
		sum += d
		if d > max {
			max = d
		}
		n++
	}
	if n > 0 {
		mean = sum / float64(n)
	}
	return mean, max
}

// lossProfitRatio is the magnitude of realized losses relative to realized
// profits. A run with no profits scores 1.
func lossProfitRatio(fills []optimize.Fill) float64 {
	var profit, loss float64
	for _, fill := range fills {
		if fill.PnL > 0 {
			profit += fill.PnL
		} else {
			loss += fill.PnL
		}
	}
	if profit <= 0 {
		return 1
	}
	return math.Abs(loss) / profit
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	std = math.Sqrt(sumSq / float64(len(values)))
	return mean, std
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
