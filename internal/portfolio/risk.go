package portfolio

// RiskLimits defines configurable risk management thresholds.
type RiskLimits struct {
	MaxPositionSize  float64 `json:"max_position_size"`  // max qty per instrument
	MaxDailyLoss     float64 `json:"max_daily_loss"`     // max daily loss
	MaxOpenPositions int     `json:"max_open_positions"` // max number of concurrent positions
	MaxExposure      float64 `json:"max_exposure"`       // max total exposure
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:  100,
		MaxDailyLoss:     5000,
		MaxOpenPositions: 5,
		MaxExposure:      100000,
	}
}

// RiskManager validates trades against risk limits.
type RiskManager struct {
	limits    RiskLimits
	portfolio *Portfolio
}

// NewRiskManager creates a RiskManager with the given limits and portfolio.
func NewRiskManager(limits RiskLimits, pf *Portfolio) *RiskManager {
	return &RiskManager{limits: limits, portfolio: pf}
}

// CanTrade checks a new trade against MaxOpenPositions, MaxPositionSize
// (either sign of qty) and MaxDailyLoss, the last compared with the
// portfolio's total unrealized PnL. MaxExposure is not checked.
// Returns true if the trade is allowed, false with a reason if not.
func (rm *RiskManager) CanTrade(symbol string, qty float64) (bool, string) {
	positions := rm.portfolio.GetPositions()

	if len(positions) >= rm.limits.MaxOpenPositions {
		return false, "max open positions reached"
	}

	if qty > rm.limits.MaxPositionSize || qty < -rm.limits.MaxPositionSize {
		return false, "position size exceeds limit"
	}

	if rm.portfolio.TotalUnrealizedPnL() < -rm.limits.MaxDailyLoss {
		return false, "max daily loss reached"
	}

	return true, ""
}
