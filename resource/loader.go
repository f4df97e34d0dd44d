package resource

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrInvalidLevel is wrapped by every level validation failure.
var ErrInvalidLevel = errors.New("resource: invalid level")

//go:embed schema/level.schema.json
var levelSchemaSource string

var levelSchema = jsonschema.MustCompileString("level.schema.json", levelSchemaSource)

// GridData is the walk grid section of a level file.
type GridData struct {
	CellSize float64  `json:"cell_size" yaml:"cell_size"`
	FloorZ   float64  `json:"floor_z,omitempty" yaml:"floor_z"`
	Rows     []string `json:"rows" yaml:"rows"`
}

// ItemSpawn is one item placed in the level.
type ItemSpawn struct {
	ID     int        `json:"id" yaml:"id"`
	Class  string     `json:"class" yaml:"class"`
	Origin [3]float64 `json:"origin" yaml:"origin"`
	// Mover is the entity the item rides on, 0 for none.
	Mover int `json:"mover,omitempty" yaml:"mover"`
	// Wait overrides the respawn delay; negative means never respawn.
	Wait   float64 `json:"wait,omitempty" yaml:"wait"`
	Random float64 `json:"random,omitempty" yaml:"random"`
	// Count overrides the catalog quantity when positive.
	Count int    `json:"count,omitempty" yaml:"count"`
	Team  string `json:"team,omitempty" yaml:"team"`
}

// LevelData represents one level file.
type LevelData struct {
	Name     string      `json:"name" yaml:"name"`
	GameType string      `json:"gametype,omitempty" yaml:"gametype"`
	Grid     GridData    `json:"grid" yaml:"grid"`
	Items    []ItemSpawn `json:"items" yaml:"items"`
}

// Mode returns the parsed game type.
func (ld *LevelData) Mode() GameType {
	gt, _ := ParseGameType(ld.GameType)
	return gt
}

// BuildGrid parses the walk grid.
func (ld *LevelData) BuildGrid() (*Grid, error) {
	return ParseGrid(ld.Grid.Rows, ld.Grid.CellSize, ld.Grid.FloorZ)
}

// Validate checks the level against the embedded schema and the item catalog.
func (ld *LevelData) Validate() error {
	raw, err := json.Marshal(ld)
	if err != nil {
		return fmt.Errorf("resource: encode level %s: %w", ld.Name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("resource: decode level %s: %w", ld.Name, err)
	}
	if err := levelSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidLevel, ld.Name, err)
	}
	if _, ok := ParseGameType(ld.GameType); !ok {
		return fmt.Errorf("%w: %s: unknown gametype %q", ErrInvalidLevel, ld.Name, ld.GameType)
	}
	seen := make(map[int]bool, len(ld.Items))
	for _, it := range ld.Items {
		if seen[it.ID] {
			return fmt.Errorf("%w: %s: duplicate item id %d", ErrInvalidLevel, ld.Name, it.ID)
		}
		seen[it.ID] = true
		if ItemByClass(it.Class) == nil {
			return fmt.Errorf("%w: %s: unknown item class %q", ErrInvalidLevel, ld.Name, it.Class)
		}
	}
	return nil
}

// ParseLevel decodes a level in the given format ("json" or "yaml") and validates it.
func ParseLevel(data []byte, format string) (*LevelData, error) {
	ld := &LevelData{}
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, ld); err != nil {
			return nil, fmt.Errorf("resource: parse yaml level: %w", err)
		}
	case "json", "":
		if err := json.Unmarshal(data, ld); err != nil {
			return nil, fmt.Errorf("resource: parse json level: %w", err)
		}
	default:
		return nil, fmt.Errorf("resource: unsupported level format %q", format)
	}
	if err := ld.Validate(); err != nil {
		return nil, err
	}
	return ld, nil
}

// ---- ResourceLoader ----

// ResourceLoader reads and holds the level files of a data directory.
type ResourceLoader struct {
	DataPath string
	Levels   map[string]*LevelData
}

// NewLoader creates a ResourceLoader for the given level directory.
func NewLoader(dataPath string) *ResourceLoader {
	return &ResourceLoader{
		DataPath: dataPath,
		Levels:   make(map[string]*LevelData),
	}
}

var levelExts = []string{".json", ".yaml", ".yml"}

// Load reads every level file of the data directory.
func (rl *ResourceLoader) Load() error {
	entries, err := os.ReadDir(rl.DataPath)
	if err != nil {
		return fmt.Errorf("resource: read dir %s: %w", rl.DataPath, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !knownExt(ext) {
			continue
		}
		if _, err := rl.loadFile(filepath.Join(rl.DataPath, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// LoadLevel reads <name>.json, <name>.yaml or <name>.yml from the data directory.
func (rl *ResourceLoader) LoadLevel(name string) (*LevelData, error) {
	if ld, ok := rl.Levels[name]; ok {
		return ld, nil
	}
	for _, ext := range levelExts {
		path := rl.path(name + ext)
		if _, err := os.Stat(path); err == nil {
			return rl.loadFile(path)
		}
	}
	return nil, fmt.Errorf("resource: level %s not found in %s: %w", name, rl.DataPath, os.ErrNotExist)
}

// Names returns the loaded level names in sorted order.
func (rl *ResourceLoader) Names() []string {
	names := make([]string, 0, len(rl.Levels))
	for n := range rl.Levels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (rl *ResourceLoader) path(file string) string {
	return filepath.Join(rl.DataPath, file)
}

func (rl *ResourceLoader) loadFile(path string) (*LevelData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", path, err)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	ld, err := ParseLevel(data, ext)
	if err != nil {
		return nil, fmt.Errorf("resource: load %s: %w", path, err)
	}
	rl.Levels[ld.Name] = ld
	return ld, nil
}

func knownExt(ext string) bool {
	for _, e := range levelExts {
		if e == ext {
			return true
		}
	}
	return false
}
