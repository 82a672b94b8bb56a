// Package security decides which drives may be selected for destruction.
package security

import (
	"github.com/cockroachdb/errors"

	"diskwipe/internal/catalog"
	"diskwipe/internal/config"
	"diskwipe/internal/wipe"
)

var (
	ErrExcluded = errors.New("drive is excluded by configuration")
	ErrNotAdmin = errors.New("administrator privileges are required")
)

// Policy applies the security section of the configuration.
type Policy struct {
	cfg *config.Config
}

func NewPolicy(cfg *config.Config) *Policy {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Policy{cfg: cfg}
}

// Check returns nil if drive may be wiped. The system disk is always
// refused, regardless of configuration.
func (p *Policy) Check(drive catalog.Drive) error {
	if drive.IsSystemDisk {
		return errors.Wrapf(wipe.ErrSystemDisk, "disk %d", drive.ID)
	}
	if p.cfg.IsExcluded(drive.ID) {
		return errors.Wrapf(ErrExcluded, "disk %d", drive.ID)
	}
	return nil
}

// ShouldSkipDisk is Check as a predicate.
func (p *Policy) ShouldSkipDisk(drive catalog.Drive) bool {
	return p.Check(drive) != nil
}

// Selectable filters drives down to those that may be wiped.
func (p *Policy) Selectable(drives []catalog.Drive) []catalog.Drive {
	out := make([]catalog.Drive, 0, len(drives))
	for _, d := range drives {
		if !p.ShouldSkipDisk(d) {
			out = append(out, d)
		}
	}
	return out
}

// RequireAdmin fails when the process cannot open raw devices.
func RequireAdmin() error {
	if !IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}
