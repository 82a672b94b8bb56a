package config

import (
	"fmt"
)

// ApplyProfile applies a named wipe profile to cfg.
func ApplyProfile(cfg *Config, profile string) error {
	switch profile {
	case "quick":
		cfg.Wipe.Method = "standard"
	case "dod":
		cfg.Wipe.Method = "dod"
	case "paranoid":
		cfg.Wipe.Method = "gutmann"
		cfg.Wipe.SettleDelay = "2s"
	case "resale":
		cfg.Wipe.Method = "standard"
		cfg.Wipe.Filesystem = "exFAT"
	default:
		return fmt.Errorf("unknown profile: %s", profile)
	}
	return nil
}
