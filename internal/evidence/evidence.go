// Package evidence manages the directory of captured frames: listing,
// usage reporting and retention.
package evidence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/smazurov/sitemon/internal/logging"
)

// ErrNotFound is returned for names outside the evidence set.
var ErrNotFound = errors.New("evidence file not found")

// File is one stored frame.
type File struct {
	Name    string    `json:"name" doc:"File name inside the evidence directory" example:"1700000000.jpeg"`
	Size    int64     `json:"size" doc:"Size in bytes"`
	ModTime time.Time `json:"mod_time" doc:"Modification time"`
	Kind    string    `json:"kind" doc:"pgm for sensing frames, jpeg for recorded frames" enum:"pgm,jpeg"`
}

// Usage summarizes the directory.
type Usage struct {
	Files int    `json:"files" doc:"Number of evidence files"`
	Bytes int64  `json:"bytes" doc:"Total size in bytes"`
	Human string `json:"human" doc:"Total size, human readable" example:"12 MB"`
}

// Store is an evidence directory with a file-count cap.
type Store struct {
	dir      string
	maxFiles int
	logger   logging.Logger
}

// NewStore returns a store over dir keeping at most maxFiles files; zero
// keeps everything.
func NewStore(dir string, maxFiles int, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.GetLogger("evidence")
	}
	return &Store{dir: dir, maxFiles: maxFiles, logger: logger}
}

// Dir is the evidence directory.
func (s *Store) Dir() string {
	return s.dir
}

// Ensure creates the directory if needed.
func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create evidence dir: %w", err)
	}
	return nil
}

// List returns evidence files newest first. A missing directory is empty.
func (s *Store) List() ([]File, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read evidence dir: %w", err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		kind, ok := KindOf(entry.Name())
		if !ok || !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, File{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Kind:    kind,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].Name > files[j].Name
	})
	return files, nil
}

// Usage totals the evidence files.
func (s *Store) Usage() (Usage, error) {
	files, err := s.List()
	if err != nil {
		return Usage{}, err
	}
	var u Usage
	for _, f := range files {
		u.Files++
		u.Bytes += f.Size
	}
	u.Human = humanize.Bytes(uint64(u.Bytes))
	return u, nil
}

// Prune removes the oldest files beyond the cap and returns how many were
// removed.
func (s *Store) Prune() (int, error) {
	if s.maxFiles <= 0 {
		return 0, nil
	}
	files, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(files) <= s.maxFiles {
		return 0, nil
	}

	var errs []error
	removed := 0
	for _, f := range files[s.maxFiles:] {
		if err := os.Remove(filepath.Join(s.dir, f.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	s.logger.Debug("Pruned evidence", "removed", removed, "kept", s.maxFiles)
	return removed, errors.Join(errs...)
}

// Path resolves name to a file inside the directory. Anything that is not a
// plain evidence file name is ErrNotFound.
func (s *Store) Path(name string) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrNotFound
	}
	if _, ok := KindOf(name); !ok {
		return "", ErrNotFound
	}
	p := filepath.Join(s.dir, name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return p, nil
}

// KindOf classifies name by extension: pgm, jpeg, or false for anything
// that is not evidence.
func KindOf(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pgm":
		return "pgm", true
	case ".jpeg", ".jpg":
		return "jpeg", true
	default:
		return "", false
	}
}
