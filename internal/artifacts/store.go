// Package artifacts promotes provider-hosted images into durable local
// storage. Provider URLs expire; a locked gallery must not.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxArtifactBytes caps a single download. Generated images are a few MB;
// anything past this is not one.
const maxArtifactBytes = 32 << 20

// Store promotes external references into a served local directory.
type Store struct {
	dir     string
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

// NewStore creates the storage directory if needed and returns a Store.
// baseURL is the URL prefix the directory is served under.
func NewStore(dir, baseURL string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create %s: %w", dir, err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}, nil
}

// Dir returns the local directory promoted files live in.
func (s *Store) Dir() string {
	return s.dir
}

// Promote downloads externalRef and returns the durable reference it is
// served under. References already inside the store come back unchanged.
func (s *Store) Promote(ctx context.Context, externalRef string) (string, error) {
	if strings.HasPrefix(externalRef, s.baseURL+"/") {
		return externalRef, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, externalRef, nil)
	if err != nil {
		return "", fmt.Errorf("artifacts: request %s: %w", externalRef, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("artifacts: fetch %s: %w", externalRef, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artifacts: fetch %s: status %d", externalRef, resp.StatusCode)
	}

	name := uuid.NewString() + extensionFor(resp.Header.Get("Content-Type"))
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("artifacts: create %s: %w", path, err)
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, maxArtifactBytes))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("artifacts: write %s: %w", path, err)
	}
	if n == 0 {
		os.Remove(path)
		return "", fmt.Errorf("artifacts: fetch %s: empty body", externalRef)
	}

	s.logger.Printf("artifacts: promoted %s (%d bytes) -> %s", externalRef, n, name)
	return s.baseURL + "/" + name, nil
}

// extensionFor maps the artifact content type to a file extension.
func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	default:
		return ".img"
	}
}
