package domain

// Intent is the classification the extraction service assigns to an utterance.
type Intent string

const (
	// IntentContinue is the default: the caller answered the question.
	IntentContinue Intent = "continue"
	// IntentRepeat means the caller asked for the question again or the
	// answer could not be understood.
	IntentRepeat Intent = "repeat"
	// IntentEmergency means the utterance indicates a medical emergency.
	IntentEmergency Intent = "emergency"
	// IntentSwitchSpecialty means the complaint maps to a different
	// specialty branch of the script.
	IntentSwitchSpecialty Intent = "switch_specialty"
)

// Valid reports whether the intent is one of the defined values.
func (i Intent) Valid() bool {
	switch i {
	case IntentContinue, IntentRepeat, IntentEmergency, IntentSwitchSpecialty:
		return true
	}
	return false
}

// TurnResult is the validated output of the extraction service for one turn.
// It is transient: the flow engine consumes it and it is never persisted.
type TurnResult struct {
	// Fields is the partial record delta extracted from the utterance.
	Fields map[string]any

	Intent     Intent
	Confidence float64

	// EmergencyReason carries the detected reason when Intent is
	// IntentEmergency.
	EmergencyReason string

	// Specialty names the target branch when Intent is IntentSwitchSpecialty.
	Specialty string
}

// Degraded is the fail-closed TurnResult: zero-confidence continue with an
// empty delta. Adapter timeouts, service errors, and malformed payloads all
// collapse to it so bad data never advances the interview.
func Degraded() TurnResult {
	return TurnResult{Intent: IntentContinue, Confidence: 0}
}
