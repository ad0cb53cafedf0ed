package fs

import (
	"fmt"
	iofs "io/fs"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/parachute"
	"github.com/spf13/afero"
)

// Contexts expands glob patterns into the file list sent as a turn's
// contexts. Patterns support ** for recursive matching. Matches keep pattern
// order, each pattern's matches are sorted, and a file matched twice is
// listed once. A pattern that matches no file is an error, so a typo does
// not silently drop context.
func (v *Vault) Contexts(patterns []string) ([]string, error) {
	fsys := afero.NewIOFS(v.fs)
	seen := make(map[string]struct{})
	var files []string
	for _, p := range patterns {
		p = strings.TrimPrefix(path.Clean(strings.TrimSpace(p)), "/")
		if p == "" || p == "." || !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("fs: invalid context pattern %q: %w", p, parachute.ErrValidation)
		}

		n := 0
		err := doublestar.GlobWalk(fsys, p, func(match string, d iofs.DirEntry) error {
			if d.IsDir() {
				return nil
			}
			n++
			if _, ok := seen[match]; ok {
				return nil
			}
			seen[match] = struct{}{}
			files = append(files, match)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fs: match %q: %w", p, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("fs: no files match %q: %w", p, parachute.ErrNotFound)
		}
	}
	return files, nil
}
