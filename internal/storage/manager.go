package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rueckwand/configurator/internal/models"
)

// ErrMotifNotFound is returned for unknown motif IDs.
var ErrMotifNotFound = errors.New("motif not found")

const metaSuffix = ".json"

// Store defines the interface for motif image storage.
type Store interface {
	// Save stores the content of r. Name, ContentType and pixel size are
	// taken from meta; ID, Size and UploadedAt are assigned by the store.
	Save(meta models.FileInfo, r io.Reader) (*models.FileInfo, error)
	SaveBytes(meta models.FileInfo, data []byte) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Open(id string) (io.ReadCloser, *models.FileInfo, error)
	GetFilePath(id string) (string, error)
}

// LocalStore implements Store using the local filesystem. Each motif is
// kept as <id> next to a <id>.json metadata file, so the index survives
// restarts.
type LocalStore struct {
	mu       sync.RWMutex
	motifDir string
	files    map[string]*models.FileInfo
}

// NewLocalStore creates a LocalStore and indexes motifs already on disk.
func NewLocalStore(motifDir string) (*LocalStore, error) {
	if err := os.MkdirAll(motifDir, 0755); err != nil {
		return nil, fmt.Errorf("creating motif directory: %w", err)
	}

	s := &LocalStore{
		motifDir: motifDir,
		files:    make(map[string]*models.FileInfo),
	}
	if err := s.scanExisting(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) scanExisting() error {
	entries, err := os.ReadDir(s.motifDir)
	if err != nil {
		return fmt.Errorf("scanning motif directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.motifDir, e.Name()))
		if err != nil {
			continue
		}
		var info models.FileInfo
		if err := json.Unmarshal(data, &info); err != nil || info.ID == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.motifDir, info.ID)); err != nil {
			continue
		}
		s.files[info.ID] = &info
	}
	return nil
}

// Save writes a motif to the local filesystem.
func (s *LocalStore) Save(meta models.FileInfo, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.motifDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := meta
	info.ID = id
	info.Size = size
	info.UploadedAt = time.Now()

	data, err := json.Marshal(&info)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(path+metaSuffix, data, 0644); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = &info

	out := info
	return &out, nil
}

// SaveBytes stores an in-memory motif.
func (s *LocalStore) SaveBytes(meta models.FileInfo, data []byte) (*models.FileInfo, error) {
	return s.Save(meta, bytes.NewReader(data))
}

// Get retrieves motif metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMotifNotFound, id)
	}
	out := *info
	return &out, nil
}

// List returns the most recent motifs. A non-positive limit returns all.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		out := *info
		list = append(list, &out)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a motif and its metadata.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMotifNotFound, id)
	}

	path := filepath.Join(s.motifDir, id)
	for _, p := range []string{path, path + metaSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting file: %w", err)
		}
	}

	delete(s.files, id)
	return nil
}

// Open returns a reader over the motif content.
func (s *LocalStore) Open(id string) (io.ReadCloser, *models.FileInfo, error) {
	info, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.motifDir, id))
	if err != nil {
		return nil, nil, fmt.Errorf("opening motif: %w", err)
	}
	return f, info, nil
}

// GetFilePath returns the absolute path to a motif file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrMotifNotFound, id)
	}
	return filepath.Join(s.motifDir, id), nil
}
