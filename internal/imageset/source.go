package imageset

import (
	"context"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Source produces the bytes and media type of one attachment.
type Source interface {
	Name() string
	Acquire(ctx context.Context) (data []byte, mimeType string, err error)
}

// FileSource reads an image from disk. The media type comes from the file
// extension, falling back to content sniffing.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return filepath.Base(f.Path) }

func (f FileSource) Acquire(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, "", err
	}
	return data, DetectType(f.Path, data), nil
}

// BytesSource wraps an already-read upload.
type BytesSource struct {
	Filename string
	Data     []byte
	// MIMEType is the declared type; sniffed when empty.
	MIMEType string
}

func (b BytesSource) Name() string { return b.Filename }

func (b BytesSource) Acquire(_ context.Context) ([]byte, string, error) {
	mt := b.MIMEType
	if mt == "" || mt == "application/octet-stream" {
		mt = DetectType(b.Filename, b.Data)
	}
	return b.Data, mt, nil
}

// DetectType resolves the media type of name/data.
func DetectType(name string, data []byte) string {
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			if i := strings.IndexByte(mt, ';'); i >= 0 {
				mt = mt[:i]
			}
			return mt
		}
	}
	return http.DetectContentType(data)
}
