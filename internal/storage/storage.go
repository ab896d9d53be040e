package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/maltedev/amazon-pipeline/internal/models"
)

// ErrEmptyURLFile is returned when a URL file holds no usable URLs.
var ErrEmptyURLFile = errors.New("url file contains no urls")

const dirLayout = "20060102_150405"

// Store persists pipeline artifacts under a root directory.
type Store struct {
	fs   afero.Fs
	root string
}

func NewStore(root string) *Store {
	return NewStoreWithFs(afero.NewOsFs(), root)
}

func NewStoreWithFs(fs afero.Fs, root string) *Store {
	if root == "" {
		root = "artifacts"
	}
	return &Store{fs: fs, root: root}
}

func (s *Store) Root() string {
	return s.root
}

// ArtifactDir returns <root>/<YYYYMMDD_HHMMSS> for now.
func ArtifactDir(root string, now time.Time) string {
	return filepath.Join(root, now.Format(dirLayout))
}

// RunDir creates the artifact directory for a run started at now.
func (s *Store) RunDir(now time.Time) (string, error) {
	dir := ArtifactDir(s.root, now)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	return dir, nil
}

// WriteJSON writes v as indented JSON via a temp file and rename.
func (s *Store) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return s.writeAtomic(path, data)
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmpFile := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmpFile, data, 0o644); err != nil {
		return err
	}

	if err := s.fs.Rename(tmpFile, path); err != nil {
		_ = s.fs.Remove(tmpFile)
		return err
	}
	return nil
}

// SaveURLFile writes f into dir and returns the file path.
func (s *Store) SaveURLFile(dir string, f *models.URLFile) (string, error) {
	path := filepath.Join(dir, fileName("urls", f.RunID, "json"))
	if err := s.WriteJSON(path, f); err != nil {
		return "", fmt.Errorf("save url file: %w", err)
	}
	return path, nil
}

// LoadURLFile reads either a URLFile document or a bare JSON array of URL
// strings. Blank entries are dropped.
func (s *Store) LoadURLFile(path string) (*models.URLFile, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("url file %s: %w", path, err)
		}
		return nil, fmt.Errorf("read url file: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyURLFile)
	}

	var file models.URLFile
	if data[0] == '[' {
		var urls []string
		if err := json.Unmarshal(data, &urls); err != nil {
			return nil, fmt.Errorf("parse url list %s: %w", path, err)
		}
		for _, u := range urls {
			file.Links = append(file.Links, models.ProductLink{URL: u})
		}
	} else if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse url file %s: %w", path, err)
	}

	links := file.Links[:0]
	for _, l := range file.Links {
		l.URL = strings.TrimSpace(l.URL)
		if l.URL != "" {
			links = append(links, l)
		}
	}
	file.Links = links

	if len(file.Links) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyURLFile)
	}
	return &file, nil
}

// SaveProductFile writes f into dir and returns the file path.
func (s *Store) SaveProductFile(dir string, f *models.ProductFile) (string, error) {
	path := filepath.Join(dir, fileName("products", f.RunID, "json"))
	if err := s.WriteJSON(path, f); err != nil {
		return "", fmt.Errorf("save product file: %w", err)
	}
	return path, nil
}

func fileName(kind, runID, ext string) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	if runID == "" {
		return kind + "." + ext
	}
	return fmt.Sprintf("%s_%s.%s", kind, runID, ext)
}
