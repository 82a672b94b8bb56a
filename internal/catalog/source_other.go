//go:build !linux && !windows

package catalog

import (
	"context"
	"runtime"

	"github.com/cockroachdb/errors"
)

type unsupportedSource struct{}

// DefaultSource reports enumeration as unsupported on this platform.
func DefaultSource() Source { return unsupportedSource{} }

func (unsupportedSource) Disks(context.Context) ([]DiskRow, error) {
	return nil, errors.Newf("drive enumeration is not supported on %s", runtime.GOOS)
}

func (unsupportedSource) Volumes(context.Context) ([]VolumeRow, error) { return nil, nil }

func (unsupportedSource) SystemDisk(context.Context) (int, error) { return -1, nil }
