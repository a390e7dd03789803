package bot

// Config holds front-end tunables that are not per-learner settings.
type Config struct {
	// MaxEntriesShown caps how many translation entries one reply lists
	// per language.
	MaxEntriesShown int
	// PracticeRoundLimit caps one free-browsing practice session.
	PracticeRoundLimit int
}

// DefaultConfig returns the default front-end configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxEntriesShown:    5,
		PracticeRoundLimit: 10,
	}
}
