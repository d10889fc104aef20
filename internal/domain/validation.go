package domain

// RejectReason is a typed, expected validation outcome. Rejections are
// frequent and not errors; a rejected cycle simply produces no signal.
type RejectReason string

const (
	RejectNone              RejectReason = ""
	RejectSpreadTooWide     RejectReason = "SpreadTooWide"
	RejectLiquidityTooLow   RejectReason = "LiquidityTooLow"
	RejectStaleData         RejectReason = "StaleData"
	RejectCrossedBook       RejectReason = "CrossedBook"
	RejectInsufficientDepth RejectReason = "InsufficientDepth"
)

// ValidationResult is the gate's verdict for one cycle.
type ValidationResult struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
}

// Accept returns a passing result.
func Accept() ValidationResult {
	return ValidationResult{Accepted: true}
}

// Reject returns a failing result with the given reason.
func Reject(reason RejectReason) ValidationResult {
	return ValidationResult{Accepted: false, Reason: reason}
}
