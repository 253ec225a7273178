package db

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"groupdraw-server-go/models"
)

// FileStore keeps all draws in one JSON array on disk.
// Every write replaces the file through a temp file and rename. The last
// issued id lives in a sidecar "<path>.seq" file so ids are never reused
// after a delete.
type FileStore struct {
	Path string
	Now  func() time.Time

	mu        sync.Mutex
	writeFile func(path string, data []byte) error
}

var _ DrawStore = (*FileStore)(nil)

// NewFileStore creates a FileStore backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{
		Path:      path,
		Now:       time.Now,
		writeFile: writeFileAtomic,
	}
}

func (s *FileStore) seqPath() string {
	return s.Path + ".seq"
}

// Save appends a new draw and persists the whole collection.
// The id is reserved in the sequence file before the draw is written, so
// a failed Save never leaves a stored draw behind and a retry cannot
// store it twice. At worst an id is skipped.
func (s *FileStore) Save(automatic []models.Group, name string, manual []models.Group) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draws, err := s.load()
	if err != nil {
		return 0, err
	}
	last, err := s.readSeq()
	if err != nil {
		return 0, err
	}
	for _, d := range draws {
		if d.ID > last {
			last = d.ID
		}
	}

	draw := models.Draw{
		ID:        last + 1,
		Name:      name,
		Timestamp: s.Now().Format(models.TimestampLayout),
		Automatic: normalizeGroups(automatic),
		Manual:    normalizeGroups(manual),
	}
	draws = append(draws, draw)

	if err := s.atomicWrite(s.seqPath(), []byte(strconv.Itoa(draw.ID))); err != nil {
		return 0, fmt.Errorf("failed to persist draw sequence: %w", err)
	}
	if err := s.write(draws); err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{"id": draw.ID, "name": name}).Info("Saved draw")
	return draw.ID, nil
}

// LoadAll returns every draw in save order; a missing file means no draws
func (s *FileStore) LoadAll() ([]models.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Delete drops the draw with the given id. Remaining ids are not renumbered.
func (s *FileStore) Delete(id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draws, err := s.load()
	if err != nil {
		return false, err
	}
	kept := make([]models.Draw, 0, len(draws))
	for _, d := range draws {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(draws) {
		logrus.WithField("id", id).Debug("Delete of unknown draw ignored")
		return true, nil
	}

	if err := s.write(kept); err != nil {
		return false, err
	}
	logrus.WithField("id", id).Info("Deleted draw")
	return true, nil
}

// Search scans every saved draw for fragment
func (s *FileStore) Search(fragment string) ([]models.Match, error) {
	draws, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	return SearchDraws(draws, fragment), nil
}

func (s *FileStore) load() ([]models.Draw, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Draw{}, nil
		}
		return nil, fmt.Errorf("failed to read draws file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Draw{}, nil
	}

	var draws []models.Draw
	if err := json.Unmarshal(data, &draws); err != nil {
		return nil, fmt.Errorf("failed to decode draws file %s: %w", s.Path, err)
	}
	for i := range draws {
		draws[i].Automatic = normalizeGroups(draws[i].Automatic)
		draws[i].Manual = normalizeGroups(draws[i].Manual)
	}
	return draws, nil
}

func (s *FileStore) write(draws []models.Draw) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(draws); err != nil {
		return fmt.Errorf("failed to encode draws: %w", err)
	}
	if err := s.atomicWrite(s.Path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write draws file: %w", err)
	}
	return nil
}

func (s *FileStore) atomicWrite(path string, data []byte) error {
	if s.writeFile == nil {
		return writeFileAtomic(path, data)
	}
	return s.writeFile(path, data)
}

func (s *FileStore) readSeq() (int, error) {
	data, err := os.ReadFile(s.seqPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read draw sequence: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		logrus.WithError(err).Warn("Ignoring corrupt draw sequence file")
		return 0, nil
	}
	return n, nil
}

// writeFileAtomic writes data next to path and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
