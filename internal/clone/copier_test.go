package clone

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"diskwipe/internal/progress"
)

// failingReader returns data until limit bytes were read, then an error.
type failingReader struct {
	data  []byte
	limit int
	off   int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.off >= r.limit {
		return 0, errors.New("CRC error")
	}
	n := copy(p, r.data[r.off:r.limit])
	r.off += n
	return n, nil
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestCopyFullDevice(t *testing.T) {
	src := pattern(10 * 4096)
	var dst, markers bytes.Buffer

	res, err := Copy(context.Background(), bytes.NewReader(src), &dst, uint64(len(src)), Options{
		ChunkSize: 4096,
		Progress:  &markers,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Equal(t, uint64(len(src)), res.BytesCopied)
	assert.Equal(t, src, dst.Bytes())

	lines := strings.Split(strings.TrimSpace(markers.String()), "\n")
	require.Len(t, lines, 10)
	first, ok := progress.ParseMarker(lines[0])
	require.True(t, ok)
	assert.Equal(t, 10.0, first)
	assert.Equal(t, "Progress: 100%", lines[9])
}

func TestCopyStopsAtDeclaredSize(t *testing.T) {
	src := pattern(8192)
	var dst bytes.Buffer

	res, err := Copy(context.Background(), bytes.NewReader(src), &dst, 5000, Options{ChunkSize: 4096})
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), res.BytesCopied)
	assert.Equal(t, src[:5000], dst.Bytes())
}

func TestCopyReadErrorTruncates(t *testing.T) {
	src := pattern(4 * 4096)
	var dst bytes.Buffer

	res, err := Copy(context.Background(), &failingReader{data: src, limit: 2 * 4096}, &dst, uint64(len(src)), Options{
		ChunkSize: 4096,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	require.Error(t, res.ReadErr)
	assert.Equal(t, uint64(2*4096), res.BytesCopied)
	assert.Equal(t, 2*4096, dst.Len())
}

func TestCopyShortSourceIsTruncated(t *testing.T) {
	var dst bytes.Buffer
	res, err := Copy(context.Background(), bytes.NewReader(pattern(100)), &dst, 1000, Options{ChunkSize: 64})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.NoError(t, res.ReadErr)
	assert.Equal(t, uint64(100), res.BytesCopied)
}

func TestCopyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Copy(ctx, bytes.NewReader(pattern(100)), io.Discard, 100, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCopyDevice(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "disk.raw")
	target := filepath.Join(dir, "disk.img")
	data := pattern(3*4096 + 17)
	require.NoError(t, os.WriteFile(source, data, 0o600))

	res, err := CopyDevice(context.Background(), source, target, uint64(len(data)), Options{ChunkSize: 4096})
	require.NoError(t, err)
	assert.False(t, res.Truncated)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = CopyDevice(context.Background(), source, target, uint64(len(data)), Options{})
	assert.Error(t, err, "existing target must not be overwritten")
}

func TestCopyDeviceRejectsZeroSize(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "disk.raw")
	target := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(source, pattern(64), 0o600))

	_, err := CopyDevice(context.Background(), source, target, 0, Options{})
	assert.True(t, errors.Is(err, ErrZeroSize))
	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr), "no empty image is left behind")
}
