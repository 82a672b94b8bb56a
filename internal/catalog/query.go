package catalog

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/cockroachdb/errors"
)

// QueryTimeout bounds every enumeration command.
const QueryTimeout = 15 * time.Second

// commandFunc captures the stdout of a short-lived query command.
type commandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runQuery(ctx context.Context, name string, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return nil, errors.Newf("%s timed out after %s", name, QueryTimeout)
		}
		return nil, errors.Wrapf(err, "%s: %s", name, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}
