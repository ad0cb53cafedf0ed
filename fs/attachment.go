package fs

import (
	"fmt"
	"mime"
	"net/http"
	"path"
	"path/filepath"

	"github.com/fwojciec/parachute"
	"github.com/spf13/afero"
)

// MaxAttachmentSize caps the size of a single attachment. Attachments travel
// base64-encoded in the request body.
const MaxAttachmentSize = 20 << 20

// ReadAttachment reads a file for sending with a turn. The MIME type comes
// from the extension, falling back to content sniffing.
func (v *Vault) ReadAttachment(name string) (parachute.Attachment, error) {
	info, err := v.fs.Stat(name)
	if err != nil {
		return parachute.Attachment{}, fmt.Errorf("fs: attachment: %w", err)
	}
	if info.IsDir() {
		return parachute.Attachment{}, fmt.Errorf("fs: attachment %s is a directory: %w", name, parachute.ErrValidation)
	}
	if info.Size() > MaxAttachmentSize {
		return parachute.Attachment{}, fmt.Errorf("fs: attachment %s exceeds %d bytes: %w", name, MaxAttachmentSize, parachute.ErrValidation)
	}

	data, err := afero.ReadFile(v.fs, name)
	if err != nil {
		return parachute.Attachment{}, fmt.Errorf("fs: attachment: %w", err)
	}
	return parachute.Attachment{
		Name:     path.Base(filepath.ToSlash(name)),
		MimeType: mimeType(name, data),
		Data:     data,
	}, nil
}

func mimeType(name string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
