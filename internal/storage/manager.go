package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/Kotoad/APP-PyQt-sub000/internal/persist"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrMissingFile is returned when neither the primary nor the backup copy exists.
var ErrMissingFile = errors.New("missing_file")

const (
	// ProjectExt is the project file extension.
	ProjectExt = ".project"
	// SettingsFile is the app settings file name.
	SettingsFile = "app_settings.json"
	// AutosaveFile is the autosave snapshot file name.
	AutosaveFile = "autosave.msgpack"
)

// Store defines the interface for project storage.
type Store interface {
	SaveProject(p *models.Project) (string, error)
	LoadProject(name string) (*models.Project, error)
	ReadProject(name string) ([]byte, error)
	ProjectPath(name string) string
	ListProjects(limit int) ([]*models.ProjectInfo, error)
	DeleteProject(name string) error
	LoadSettings() (models.AppSettings, error)
	SaveSettings(s models.AppSettings) error
	SaveAutosave(p *models.Project) (*Snapshot, error)
	LoadAutosave() (*models.Project, *Snapshot, error)
}

// Snapshot is the autosave envelope. Document holds the project JSON.
type Snapshot struct {
	ID          string    `msgpack:"id"`
	SavedAt     time.Time `msgpack:"saved_at"`
	ProjectName string    `msgpack:"project_name"`
	Document    []byte    `msgpack:"document"`
}

// LocalStore implements Store using the local filesystem. Every project and
// settings write goes to the project directory and to the backup directory.
type LocalStore struct {
	mu         sync.RWMutex
	projectDir string
	backupDir  string
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(projectDir, backupDir string) (*LocalStore, error) {
	for _, dir := range []string{projectDir, backupDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}

	return &LocalStore{
		projectDir: projectDir,
		backupDir:  backupDir,
	}, nil
}

// fileName turns a project name into its file name.
func fileName(name string) (string, error) {
	name = strings.TrimSuffix(filepath.Base(strings.TrimSpace(name)), ProjectExt)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid project name %q", name)
	}
	return name + ProjectExt, nil
}

// ProjectPath returns the primary path of a project.
func (s *LocalStore) ProjectPath(name string) string {
	fn, err := fileName(name)
	if err != nil {
		return ""
	}
	return filepath.Join(s.projectDir, fn)
}

// SaveProject writes the project to both copies and returns the primary path.
func (s *LocalStore) SaveProject(p *models.Project) (string, error) {
	fn, err := fileName(p.Metadata.Name)
	if err != nil {
		return "", err
	}
	p.Metadata.Modified = time.Now().Format(time.RFC3339)
	data, err := persist.Encode(p)
	if err != nil {
		return "", fmt.Errorf("encoding project: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	primary := filepath.Join(s.projectDir, fn)
	if err := writeFile(primary, data); err != nil {
		return "", fmt.Errorf("writing project: %w", err)
	}
	if err := writeFile(filepath.Join(s.backupDir, fn), data); err != nil {
		fmt.Printf("[Store] Backup write failed for %s: %v\n", fn, err)
	}
	return primary, nil
}

// ReadProject returns the raw document, falling back to the backup copy.
func (s *LocalStore) ReadProject(name string) ([]byte, error) {
	fn, err := fileName(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readWithBackup(fn)
}

func (s *LocalStore) readWithBackup(fn string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.projectDir, fn))
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", fn, err)
	}
	data, err = os.ReadFile(filepath.Join(s.backupDir, fn))
	if err == nil {
		fmt.Printf("[Store] Primary %s missing, using backup\n", fn)
		return data, nil
	}
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrMissingFile, fn)
	}
	return nil, fmt.Errorf("reading backup %s: %w", fn, err)
}

// LoadProject reads and decodes a project.
func (s *LocalStore) LoadProject(name string) (*models.Project, error) {
	data, err := s.ReadProject(name)
	if err != nil {
		return nil, err
	}
	return persist.Decode(data)
}

// ListProjects returns the most recently modified projects. Projects found
// only in the backup directory are listed too.
func (s *LocalStore) ListProjects(limit int) ([]*models.ProjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]*models.ProjectInfo)
	for _, dir := range []string{s.projectDir, s.backupDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ProjectExt {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ProjectExt)
			if _, ok := seen[name]; ok {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			seen[name] = &models.ProjectInfo{
				Name:       name,
				Path:       filepath.Join(dir, e.Name()),
				Size:       fi.Size(),
				ModifiedAt: fi.ModTime(),
				Backup:     dir == s.backupDir,
			}
		}
	}

	list := make([]*models.ProjectInfo, 0, len(seen))
	for _, info := range seen {
		list = append(list, info)
	}

	// Sort by ModifiedAt desc
	sort.Slice(list, func(i, j int) bool {
		if list[i].ModifiedAt.Equal(list[j].ModifiedAt) {
			return list[i].Name < list[j].Name
		}
		return list[i].ModifiedAt.After(list[j].ModifiedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// DeleteProject removes both copies of a project.
func (s *LocalStore) DeleteProject(name string) error {
	fn, err := fileName(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, dir := range []string{s.projectDir, s.backupDir} {
		err := os.Remove(filepath.Join(dir, fn))
		if err == nil {
			found = true
			continue
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("deleting project: %w", err)
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMissingFile, fn)
	}
	return nil
}

// LoadSettings reads app_settings.json. When no copy exists the defaults are
// returned together with ErrMissingFile.
func (s *LocalStore) LoadSettings() (models.AppSettings, error) {
	s.mu.RLock()
	data, err := s.readWithBackup(SettingsFile)
	s.mu.RUnlock()

	settings := models.DefaultAppSettings()
	if err != nil {
		return settings, err
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return models.DefaultAppSettings(), fmt.Errorf("parsing %s: %w", SettingsFile, err)
	}
	settings.Normalize()
	return settings, nil
}

// SaveSettings writes app_settings.json to both copies.
func (s *LocalStore) SaveSettings(settings models.AppSettings) error {
	settings.Normalize()
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFile(filepath.Join(s.projectDir, SettingsFile), data); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := writeFile(filepath.Join(s.backupDir, SettingsFile), data); err != nil {
		fmt.Printf("[Store] Backup settings write failed: %v\n", err)
	}
	return nil
}

// NewSnapshot wraps the encoded project in a fresh snapshot envelope.
func NewSnapshot(p *models.Project) (*Snapshot, error) {
	doc, err := persist.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("encoding project: %w", err)
	}
	return &Snapshot{
		ID:          uuid.New().String(),
		SavedAt:     time.Now(),
		ProjectName: p.Metadata.Name,
		Document:    doc,
	}, nil
}

// SaveAutosave writes a msgpack snapshot of p to the backup directory.
func (s *LocalStore) SaveAutosave(p *models.Project) (*Snapshot, error) {
	snap, err := NewSnapshot(p)
	if err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFile(filepath.Join(s.backupDir, AutosaveFile), data); err != nil {
		return nil, fmt.Errorf("writing autosave: %w", err)
	}
	fmt.Printf("[Store %s] Autosaved %q (%d bytes)\n", snap.ID[:8], snap.ProjectName, len(snap.Document))
	return snap, nil
}

// LoadAutosave restores the latest snapshot.
func (s *LocalStore) LoadAutosave() (*models.Project, *Snapshot, error) {
	s.mu.RLock()
	data, err := os.ReadFile(filepath.Join(s.backupDir, AutosaveFile))
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingFile, AutosaveFile)
		}
		return nil, nil, fmt.Errorf("reading autosave: %w", err)
	}

	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, nil, fmt.Errorf("%w: autosave: %v", persist.ErrCorruptProject, err)
	}
	p, err := persist.Decode(snap.Document)
	if err != nil {
		return nil, nil, err
	}
	return p, &snap, nil
}

// writeFile writes data through a temp file in the same directory and
// renames it into place.
func writeFile(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
