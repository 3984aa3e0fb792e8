package trader

// RiskLimits are the guardrail constraints the decision plugin enforces,
// grounded on trader_plugins/config.py:RiskLimits.
type RiskLimits struct {
	RiskPerTrade          float64
	DailyDrawdownLimit    float64
	MonthlyDrawdownLimit  float64
	MaxTradesPerDay       int
	MaxTradesPerAssetDay  int
}

// Config is the top-level trader tunables, grounded on
// trader_plugins/config.py:TraderConfig.
type Config struct {
	MacroTimeframe     string
	ExecutionTimeframe string
	PWinThreshold      float64
	FeeBps             float64
	SlippageBps        float64
	StartingCash       float64
	Risk               RiskLimits
}

// DefaultConfig mirrors TraderConfig's dataclass field defaults.
func DefaultConfig() Config {
	return Config{
		MacroTimeframe:     "4h",
		ExecutionTimeframe: "1h",
		PWinThreshold:      0.60,
		FeeBps:             8.0,
		SlippageBps:        4.0,
		StartingCash:       100_000.0,
		Risk: RiskLimits{
			RiskPerTrade:         0.005,
			DailyDrawdownLimit:   0.02,
			MonthlyDrawdownLimit: 0.10,
			MaxTradesPerDay:      8,
			MaxTradesPerAssetDay: 3,
		},
	}
}

// ModeFromCCIF returns the operational mode for a CCI-F score and lock
// state, ported verbatim from trader_plugins/config.py:mode_from_ccif.
func ModeFromCCIF(ccif float64, locked bool) string {
	if locked {
		return "locked"
	}
	switch {
	case ccif >= 0.85:
		return "normal"
	case ccif >= 0.70:
		return "cautious"
	case ccif >= 0.55:
		return "restricted"
	default:
		return "locked"
	}
}
