package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PersonaChanged reports a change to the effective system instruction.
	// New sessions pick it up; running sessions keep the instruction they
	// connected with.
	PersonaChanged bool
	NewPersona     string

	// DialingChanged reports a change to the number or lookup policy.
	DialingChanged bool
	NewDialing     DialingConfig

	// DelaysChanged reports a change to command pacing.
	DelaysChanged bool
	NewDelays     CommandConfig
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.PersonaChanged || d.DialingChanged || d.DelaysChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Persona.Instruction() != new.Persona.Instruction() {
		d.PersonaChanged = true
		d.NewPersona = new.Persona.Instruction()
	}

	if old.Dialing != new.Dialing {
		d.DialingChanged = true
		d.NewDialing = new.Dialing
	}

	if old.Command != new.Command {
		d.DelaysChanged = true
		d.NewDelays = new.Command
	}

	return d
}
