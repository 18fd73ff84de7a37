package contracts

// Authenticity signal names. The signals map always contains at least
// SignalVisualHash, SignalTextMatch and SignalHoloPattern.
const (
	SignalVisualHash        = "visualHash"
	SignalTextMatch         = "textMatch"
	SignalHoloPattern       = "holoPattern"
	SignalBorderConsistency = "borderConsistency"
	SignalFontValidation    = "fontValidation"
)

// AuthenticityResult is the fused authenticity verdict.
// Invariant: Score >= 0.5 implies FakeDetected == false.
type AuthenticityResult struct {
	Score        float64            `json:"score"`
	FakeDetected bool               `json:"fakeDetected"`
	VerifiedByAI bool               `json:"verifiedByAI"`
	Signals      map[string]float64 `json:"signals"`
	Rationale    string             `json:"rationale"`
}
