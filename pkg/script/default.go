package script

import _ "embed"

//go:embed defaults/intake.yaml
var defaultScript []byte

// Default returns the built-in general intake script (consent, chief
// complaint, specialty assessments, medical history, wrap-up). Each call
// returns a fresh value so callers cannot share accidental state.
func Default() *Script {
	return MustParse(defaultScript)
}
