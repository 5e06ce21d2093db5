package studio

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// MaxMediaSize is the largest file [Session.ImportMedia] accepts.
const MaxMediaSize = 500 << 20

var (
	ErrNotVideo      = errors.New("not a video file")
	ErrMediaTooLarge = errors.New("media file too large")
)

// Media is the clip currently loaded for editing.
type Media struct {
	Name      string `json:"name"`
	SourceRef string `json:"sourceRef"`
	MIMEType  string `json:"mimeType,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

// Validate checks the MIME type and size limits.
func (m Media) Validate() error {
	if !strings.Contains(m.MIMEType, "video") {
		return fmt.Errorf("%w: %s (%q)", ErrNotVideo, m.Name, m.MIMEType)
	}

	if m.Size > MaxMediaSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrMediaTooLarge, m.Name, m.Size, MaxMediaSize)
	}

	return nil
}

// MediaFromFile describes a local file. The MIME type comes from the
// extension, falling back to content sniffing.
func MediaFromFile(path string) (Media, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Media{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Media{}, fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		return Media{}, fmt.Errorf("%w: %s is a directory", ErrNotVideo, path)
	}

	mimeType := typeByExtension(filepath.Ext(abs))
	if mimeType == "" {
		mimeType, err = sniff(abs)
		if err != nil {
			return Media{}, err
		}
	}

	ref := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}

	return Media{
		Name:      filepath.Base(abs),
		SourceRef: ref.String(),
		MIMEType:  mimeType,
		Size:      info.Size(),
	}, nil
}

// videoTypes covers containers missing from minimal mime tables.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

func typeByExtension(ext string) string {
	ext = strings.ToLower(ext)
	if t, ok := videoTypes[ext]; ok {
		return t
	}

	return mime.TypeByExtension(ext)
}

func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 512)

	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return http.DetectContentType(buf[:n]), nil
}
