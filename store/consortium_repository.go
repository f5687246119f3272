package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"consortium-core/core"
)

const (
	ConsortiumsPathKey = "consortiums.path"

	storeFileMode   = 0o600
	storeDirMode    = 0o700
	storeConfigDir  = "consortium"
	storeConfigFile = "consortiums.toml"
	tempFilePattern = ".consortiums-*.toml.tmp"
)

var (
	// ErrConsortiumNotFound is returned when no saved consortium has the requested name.
	ErrConsortiumNotFound = core.ErrConsortiumNotFound
	// ErrInvalidName is returned for empty consortium names.
	ErrInvalidName = errors.New("consortium name must not be empty")
)

// SavedConsortium is a named consortium configuration.
type SavedConsortium = core.SavedConsortium

// ConsortiumRepository stores named consortiums in one TOML file.
type ConsortiumRepository struct {
	path string
	mu   *sync.RWMutex
	now  func() time.Time
}

var _ core.ConsortiumStore = (*ConsortiumRepository)(nil)

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

// NewConsortiumRepository resolves the store path from cfg, falling back to the user config
// directory.
func NewConsortiumRepository(cfg *viper.Viper) (*ConsortiumRepository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	path := cfg.GetString(ConsortiumsPathKey)
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config directory: %w", err)
		}
		path = filepath.Join(configDir, storeConfigDir, storeConfigFile)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve consortiums path: %w", err)
	}
	path = filepath.Clean(absPath)

	return &ConsortiumRepository{path: path, mu: lockForPath(path), now: time.Now}, nil
}

// Path returns the backing file.
func (r *ConsortiumRepository) Path() string {
	return r.path
}

// Save validates cfg and stores it under name, replacing any previous entry.
func (r *ConsortiumRepository) Save(ctx context.Context, name string, cfg core.ConsortiumConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	now := r.now().UTC()
	saved := SavedConsortium{Name: name, Config: cfg, CreatedAt: now, UpdatedAt: now}

	updated := false
	for i := range file.Consortiums {
		if file.Consortiums[i].Name == name {
			saved.CreatedAt = file.Consortiums[i].CreatedAt
			file.Consortiums[i] = toSchema(saved)
			updated = true
			break
		}
	}
	if !updated {
		file.Consortiums = append(file.Consortiums, toSchema(saved))
	}

	return r.writeSchema(file)
}

// Get returns the consortium saved under name.
func (r *ConsortiumRepository) Get(ctx context.Context, name string) (SavedConsortium, error) {
	if err := ctx.Err(); err != nil {
		return SavedConsortium{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return SavedConsortium{}, err
	}

	for _, entry := range file.Consortiums {
		if entry.Name == name {
			return fromSchema(entry), nil
		}
	}
	return SavedConsortium{}, fmt.Errorf("%w: %s", ErrConsortiumNotFound, name)
}

// List returns every saved consortium sorted by name.
func (r *ConsortiumRepository) List(ctx context.Context) ([]SavedConsortium, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	out := make([]SavedConsortium, 0, len(file.Consortiums))
	for _, entry := range file.Consortiums {
		out = append(out, fromSchema(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Remove deletes the consortium saved under name.
func (r *ConsortiumRepository) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	kept := file.Consortiums[:0]
	found := false
	for _, entry := range file.Consortiums {
		if entry.Name == name {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrConsortiumNotFound, name)
	}
	file.Consortiums = kept

	return r.writeSchema(file)
}

func (r *ConsortiumRepository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read consortiums file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode consortiums file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *ConsortiumRepository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.path), storeDirMode); err != nil {
		return fmt.Errorf("create consortiums directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode consortiums file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp consortiums file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp consortiums file: %w", err)
	}
	if err := tempFile.Chmod(storeFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp consortiums file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp consortiums file: %w", err)
	}
	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace consortiums file: %w", err)
	}
	cleanup = false

	return nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
