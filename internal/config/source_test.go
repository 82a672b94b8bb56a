package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Source comments stay in English across the module.
func TestSourcesHaveNoCyrillic(t *testing.T) {
	for _, root := range []string{"../../internal", "../../cmd"} {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			for i, line := range strings.Split(string(data), "\n") {
				assert.False(t, strings.ContainsFunc(line, func(r rune) bool { return unicode.Is(unicode.Cyrillic, r) }),
					"%s:%d", path, i+1)
			}
			return nil
		})
		require.NoError(t, err)
	}
}
