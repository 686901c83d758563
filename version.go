package intake

// Version is the intake release version. Release builds override it via
// -ldflags "-X github.com/surreyclinic/intake.Version=...".
var Version = "0.1.0"
