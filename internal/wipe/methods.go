package wipe

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// MethodKind names a wipe policy.
type MethodKind string

const (
	KindStandard MethodKind = "standard"
	KindDoD      MethodKind = "dod"
	KindGutmann  MethodKind = "gutmann"
	KindRandom   MethodKind = "random"
)

// MaxRandomPasses bounds RandomN.
const MaxRandomPasses = 100

// Method resolves to a pass count. Overwrites is only meaningful for
// KindRandom.
type Method struct {
	Kind       MethodKind
	Overwrites uint
}

var (
	Standard = Method{Kind: KindStandard}
	DoD      = Method{Kind: KindDoD}
	Gutmann  = Method{Kind: KindGutmann}
)

// RandomN is n overwrite passes followed by the format pass.
func RandomN(n uint) Method {
	return Method{Kind: KindRandom, Overwrites: n}
}

// ParseMethod resolves a method name. passes is the overwrite count for
// "random" and ignored otherwise.
func ParseMethod(name string, passes uint) (Method, error) {
	switch MethodKind(strings.ToLower(strings.TrimSpace(name))) {
	case KindStandard, "":
		return Standard, nil
	case KindDoD, "dod5220":
		return DoD, nil
	case KindGutmann:
		return Gutmann, nil
	case KindRandom:
		if passes < 1 || passes > MaxRandomPasses {
			return Method{}, errors.Newf("random passes must be between 1 and %d, got %d", MaxRandomPasses, passes)
		}
		return RandomN(passes), nil
	default:
		return Method{}, errors.Newf("unknown wipe method %q", name)
	}
}

// PassCount is the total number of passes including the final format.
func (m Method) PassCount() int {
	switch m.Kind {
	case KindDoD:
		return 7
	case KindGutmann:
		return 35
	case KindRandom:
		return int(m.Overwrites) + 1
	default:
		return 4
	}
}

func (m Method) String() string {
	if m.Kind == KindRandom {
		return fmt.Sprintf("random(%d)", m.Overwrites)
	}
	if m.Kind == "" {
		return string(KindStandard)
	}
	return string(m.Kind)
}

// Filesystem is the target of the final format pass.
type Filesystem string

const (
	NTFS  Filesystem = "NTFS"
	FAT32 Filesystem = "FAT32"
	ExFAT Filesystem = "exFAT"
	Ext4  Filesystem = "ext4"
)

var filesystems = []Filesystem{NTFS, FAT32, ExFAT, Ext4}

// ParseFilesystem matches case-insensitively.
func ParseFilesystem(name string) (Filesystem, error) {
	for _, fs := range filesystems {
		if strings.EqualFold(string(fs), strings.TrimSpace(name)) {
			return fs, nil
		}
	}
	return "", errors.Newf("unsupported filesystem %q", name)
}
