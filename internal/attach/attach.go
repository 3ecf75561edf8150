// Package attach stores uploaded files on disk and returns the metadata the
// ledger records. Only URL and metadata enter the ledger, never bytes.
package attach

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"caseline/internal/domain"
)

// Storage persists attachment bytes and returns the stored record.
type Storage interface {
	Put(name string, data []byte) (domain.Attachment, error)
}

// LocalDir stores attachments under a workspace directory, one file per
// upload, keyed by a fresh id to avoid name collisions.
type LocalDir struct {
	Dir string
}

func (l LocalDir) Put(name string, data []byte) (domain.Attachment, error) {
	if len(data) == 0 {
		return domain.Attachment{}, fmt.Errorf("empty attachment %q", name)
	}
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = "file"
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return domain.Attachment{}, err
	}
	id := uuid.NewString()
	stored := id + "_" + base
	path := filepath.Join(l.Dir, stored)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.Attachment{}, err
	}
	return domain.Attachment{
		URL:         "/files/" + stored,
		Name:        base,
		Size:        int64(len(data)),
		ContentType: sniffContentType(base, data),
	}, nil
}

func sniffContentType(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".dwg":
		return "image/vnd.dwg"
	}
	return http.DetectContentType(data)
}
