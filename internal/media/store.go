// ABOUTME: Device-scoped artifact store that mints retrievable URLs
// ABOUTME: Serves artifacts read-only at /assets/<kind>/<device_id>/<id>.<ext>

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind groups artifacts by media type.
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// URLPrefix is the path artifacts are served under.
const URLPrefix = "/assets"

// ErrInvalidPath is returned for a kind, device id, or file name that is not
// a safe single path segment.
var ErrInvalidPath = errors.New("invalid artifact path")

var (
	segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	contentTypes   = map[string]string{
		"mp3":  "audio/mpeg",
		"wav":  "audio/wav",
		"png":  "image/png",
		"jpg":  "image/jpeg",
		"webp": "image/webp",
	}
)

// Artifact locates a stored artifact.
type Artifact struct {
	Path string
	URL  string
}

// Store saves artifacts under <kind>/<device>/<random>.<ext>. There is no
// manifest: an artifact exists once Save returns its URL.
type Store struct {
	files  FileStore
	logger *slog.Logger
}

// NewStore wraps a FileStore.
func NewStore(files FileStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{files: files, logger: logger}
}

func validKind(k Kind) bool {
	return k == KindAudio || k == KindImage
}

// Save persists data under a freshly generated name and returns its URL.
func (s *Store) Save(ctx context.Context, kind Kind, deviceID, ext string, data []byte) (Artifact, error) {
	contentType, ok := contentTypes[ext]
	if !validKind(kind) || !ok || !segmentPattern.MatchString(deviceID) {
		return Artifact{}, fmt.Errorf("%w: %s/%s/*.%s", ErrInvalidPath, kind, deviceID, ext)
	}

	path := fmt.Sprintf("%s/%s/%s.%s", kind, deviceID, uuid.NewString(), ext)
	if err := s.files.Put(ctx, path, data, contentType); err != nil {
		return Artifact{}, fmt.Errorf("saving %s artifact: %w", kind, err)
	}

	s.logger.Debug("artifact saved", "path", path, "bytes", len(data))
	return Artifact{Path: path, URL: URLPrefix + "/" + path}, nil
}

// parseAssetPath validates "<kind>/<device>/<name>.<ext>".
func parseAssetPath(p string) (path, contentType string, err error) {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(parts) != 3 {
		return "", "", ErrInvalidPath
	}
	kind, device, file := Kind(parts[0]), parts[1], parts[2]

	name, ext, ok := strings.Cut(file, ".")
	if !ok || !validKind(kind) || !segmentPattern.MatchString(device) || !segmentPattern.MatchString(name) {
		return "", "", ErrInvalidPath
	}
	contentType, ok = contentTypes[ext]
	if !ok {
		return "", "", ErrInvalidPath
	}
	return strings.Join(parts, "/"), contentType, nil
}

// Handler serves artifacts read-only. Mount it with http.StripPrefix(URLPrefix, ...).
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		path, contentType, err := parseAssetPath(r.URL.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		rc, err := s.files.Open(r.Context(), path)
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.logger.Error("failed to open artifact", "path", path, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		defer func() { _ = rc.Close() }()

		// Artifact names are never reused, so responses can be cached forever.
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

		if rs, ok := rc.(io.ReadSeeker); ok {
			http.ServeContent(w, r, path, time.Time{}, rs)
			return
		}
		if r.Method == http.MethodHead {
			return
		}
		_, _ = io.Copy(w, rc)
	})
}
