// Package fs resolves the local files a turn refers to: vault context globs
// and attachments.
package fs

import (
	"github.com/spf13/afero"
)

// Vault is a directory tree that context patterns are resolved against.
// Paths handed to and returned by a Vault are slash-separated and relative
// to its root.
type Vault struct {
	fs afero.Fs
}

// NewVault returns a Vault rooted at dir on the local disk. Paths cannot
// escape dir.
func NewVault(dir string) *Vault {
	return &Vault{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}
}

// NewVaultFs returns a Vault over an arbitrary filesystem.
func NewVaultFs(fsys afero.Fs) *Vault {
	return &Vault{fs: fsys}
}
