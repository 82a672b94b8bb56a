// Package clone streams a raw device into an image file in fixed-size
// chunks, printing progress markers the orchestrator parses.
package clone

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"diskwipe/internal/logging"
	"diskwipe/internal/progress"
)

// ErrZeroSize rejects a copy with no declared size.
var ErrZeroSize = errors.New("declared device size is zero")

// DefaultChunkSize is the copy buffer size.
const DefaultChunkSize = 1 << 20

type Options struct {
	ChunkSize    int
	MaxSpeedMBps float64
	// Progress receives one "Progress: P%" line per chunk. Nil discards.
	Progress io.Writer
	Logger   *zap.Logger
}

// Result describes a finished copy. Truncated is set when a read failed
// before size bytes were copied; ReadErr holds that failure.
type Result struct {
	Size        uint64
	BytesCopied uint64
	Truncated   bool
	ReadErr     error
}

// Copy reads up to size bytes from src into dst. A read failure stops the
// copy early and is reported in the Result, not as an error; write
// failures and cancellation are errors.
func Copy(ctx context.Context, src io.Reader, dst io.Writer, size uint64, opts Options) (Result, error) {
	logger := logging.OrNop(opts.Logger)
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	out := opts.Progress
	if out == nil {
		out = io.Discard
	}

	tw := NewThrottledWriter(dst, opts.MaxSpeedMBps)
	buf := GetBuffer(chunk)
	defer PutBuffer(buf)

	res := Result{Size: size}
	lastPercent := -1.0
	for res.BytesCopied < size {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(err, "clone interrupted")
		}

		want := uint64(chunk)
		if remaining := size - res.BytesCopied; remaining < want {
			want = remaining
		}

		n, rerr := src.Read(buf[:want])
		if n > 0 {
			if _, err := tw.Write(buf[:n]); err != nil {
				return res, errors.Wrapf(err, "write at offset %d", res.BytesCopied)
			}
			res.BytesCopied += uint64(n)

			// One marker per 0.1% step.
			percent := math.Round(float64(res.BytesCopied)/float64(size)*1000) / 10
			if percent != lastPercent {
				fmt.Fprintln(out, progress.FormatMarker(percent))
				lastPercent = percent
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			res.Truncated = true
			res.ReadErr = rerr
			logger.Warn("Read error, stopping clone",
				zap.Uint64("offset", res.BytesCopied),
				zap.Error(rerr))
			break
		}
		if n == 0 {
			break
		}
	}

	if res.BytesCopied < size && !res.Truncated {
		res.Truncated = true
	}

	if err := tw.Sync(); err != nil {
		return res, errors.Wrap(err, "sync target")
	}
	return res, nil
}

// CopyDevice opens source read-only and creates target exclusively, then
// runs Copy. The target file is kept even when the copy is truncated.
func CopyDevice(ctx context.Context, source, target string, size uint64, opts Options) (Result, error) {
	logger := logging.OrNop(opts.Logger)
	if size == 0 {
		return Result{}, errors.Wrapf(ErrZeroSize, "source %s", source)
	}

	in, err := os.Open(source)
	if err != nil {
		return Result{Size: size}, errors.Wrapf(err, "open source %s", source)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Result{Size: size}, errors.Wrapf(err, "create target %s", target)
	}

	logger.Info("Clone started",
		zap.String("source", source),
		zap.String("target", target),
		zap.Uint64("size", size))

	res, err := Copy(ctx, in, out, size, opts)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "close target")
	}
	if err != nil {
		return res, err
	}

	logger.Info("Clone finished",
		zap.Uint64("bytes_copied", res.BytesCopied),
		zap.Bool("truncated", res.Truncated))
	return res, nil
}
