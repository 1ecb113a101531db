// Package config loads vecindex settings from YAML.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/viant/vecindex/engine"
	"github.com/viant/vecindex/index"
	"github.com/viant/vecindex/query"
	"github.com/viant/vecindex/table"
	"github.com/viant/vecindex/vector"
)

const (
	defaultDatabasePath = ":memory:"
	defaultIDField      = "id"
)

// Config holds all settings.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Database DatabaseConfig `yaml:"database"`
	Table    TableConfig    `yaml:"table"`
	Search   SearchConfig   `yaml:"search"`
	Index    *IndexConfig   `yaml:"index,omitempty"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TableConfig names the searched table.
type TableConfig struct {
	Name    string `yaml:"name"`
	IDField string `yaml:"id_field"`
}

// SearchConfig mirrors query.Params. Empty values leave the choice to the backend.
type SearchConfig struct {
	Distance     string `yaml:"distance,omitempty"`
	Type         string `yaml:"type,omitempty"`
	Probes       int    `yaml:"probes,omitempty"`
	RefineFactor int    `yaml:"refine_factor,omitempty"`
	PostFilter   *bool  `yaml:"post_filter,omitempty"`
	Column       string `yaml:"column,omitempty"`
}

// IndexConfig mirrors table.IndexOptions.
type IndexConfig struct {
	Column     string  `yaml:"column,omitempty"`
	Kind       string  `yaml:"kind,omitempty"`
	Distance   string  `yaml:"distance,omitempty"`
	CoverBase  float32 `yaml:"cover_base,omitempty"`
	CoverBound string  `yaml:"cover_bound,omitempty"`
}

// Load reads and parses the config file at path. A relative database path
// is resolved against the config directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Database.Path = expandPath(cfg.Database.Path, filepath.Dir(path))
	return cfg, nil
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	if _, err := cfg.SearchParams(); err != nil {
		return nil, err
	}
	if _, _, err := cfg.IndexOptions(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDatabasePath
	}
	if cfg.Table.IDField == "" {
		cfg.Table.IDField = defaultIDField
	}
}

// SearchParams converts the search section into validated query params.
func (c *Config) SearchParams() (query.Params, error) {
	s := c.Search
	distance, err := vector.ParseDistanceType(s.Distance)
	if err != nil {
		return query.Params{}, fmt.Errorf("invalid search config: %w", err)
	}
	searchType, err := query.ParseSearchType(s.Type)
	if err != nil {
		return query.Params{}, fmt.Errorf("invalid search config: %w", err)
	}
	params := query.NewParams().
		WithDistance(distance).
		WithStrategy(query.Strategy{Type: searchType, Probes: s.Probes, RefineFactor: s.RefineFactor}).
		WithColumn(s.Column)
	if s.PostFilter != nil {
		params = params.WithPostFilter(*s.PostFilter)
	}
	if err := params.Validate(); err != nil {
		return query.Params{}, fmt.Errorf("invalid search config: %w", err)
	}
	return params, nil
}

// IndexOptions converts the index section; ok is false when none is configured.
func (c *Config) IndexOptions() (opts table.IndexOptions, ok bool, err error) {
	if c.Index == nil {
		return opts, false, nil
	}
	if opts.Kind, err = index.ParseKind(c.Index.Kind); err != nil {
		return opts, false, fmt.Errorf("invalid index config: %w", err)
	}
	if opts.Distance, err = vector.ParseDistanceType(c.Index.Distance); err != nil {
		return opts, false, fmt.Errorf("invalid index config: %w", err)
	}
	opts.CoverBase = c.Index.CoverBase
	switch strings.ToLower(strings.TrimSpace(c.Index.CoverBound)) {
	case "", "node", "per_node", "pernode":
	case "level":
		opts.CoverBoundLevel = true
	default:
		return opts, false, fmt.Errorf("invalid index config: unknown cover bound %q", c.Index.CoverBound)
	}
	return opts, true, nil
}

// EnsureIndex creates the configured index on tbl unless an index with the
// same kind and distance is already registered. Without an index section it
// does nothing.
func (c *Config) EnsureIndex(ctx context.Context, tbl *table.Table) error {
	opts, ok, err := c.IndexOptions()
	if err != nil || !ok {
		return err
	}
	column := c.Index.Column
	if column == "" {
		schema, err := tbl.Schema(ctx)
		if err != nil {
			return err
		}
		if columns := schema.VectorColumns(); len(columns) == 1 {
			column = columns[0]
		}
	}
	kind := opts.Kind
	if kind == "" {
		kind = index.KindAuto
	}
	info, err := tbl.IndexInfo(ctx, column)
	switch {
	case err == nil && info.Kind == kind && info.Distance == opts.Distance.OrDefault():
		return nil
	case err != nil && !errors.Is(err, table.ErrNoIndex):
		return err
	}
	return tbl.CreateIndex(ctx, column, opts)
}

// OpenTable opens the configured database and returns the table handle.
func (c *Config) OpenTable(logger *zap.Logger) (*table.Table, error) {
	if c.Table.Name == "" {
		return nil, fmt.Errorf("invalid table config: name is empty")
	}
	db, err := engine.Open(c.Database.Path)
	if err != nil {
		return nil, err
	}
	return table.New(db, c.Table.Name, table.WithLogger(logger)), nil
}

// expandPath resolves a relative path against configDir.
func expandPath(path, configDir string) string {
	if path == defaultDatabasePath || strings.HasPrefix(path, "file:") || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}
