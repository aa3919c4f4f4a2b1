// Package config loads the qsync configuration file.
//
// The file is YAML (.yaml, .yml) or TOML (.toml). It is checked against an
// embedded CUE schema before it is decoded, so a misspelled key or a
// malformed duration is reported with its path instead of being ignored.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// EnvBackendURL overrides backend_url when set.
const EnvBackendURL = "QSYNC_BACKEND_URL"

// Defaults.
const (
	DefaultBackendURL     = "http://localhost:8080"
	DefaultTokenScope     = "session"
	DefaultRequestTimeout = 30 * time.Second
	DefaultStaleAfter     = 5 * time.Minute
)

// Config is the resolved configuration.
type Config struct {
	BackendURL        string
	TokenScope        string
	JournalPath       string
	RequestTimeout    time.Duration
	DefaultStaleAfter time.Duration

	// Queries holds per-query overrides keyed by query name
	// ("doctors/pending").
	Queries map[string]Query
}

// Query overrides one query's freshness. Nil fields are unset.
type Query struct {
	StaleAfter      *time.Duration
	RefetchInterval *time.Duration
	Retry           *int
}

// file mirrors the on-disk layout. Durations stay strings until the schema
// has accepted them.
type file struct {
	BackendURL        string               `yaml:"backend_url" toml:"backend_url"`
	TokenScope        string               `yaml:"token_scope" toml:"token_scope"`
	JournalPath       string               `yaml:"journal_path" toml:"journal_path"`
	RequestTimeout    string               `yaml:"request_timeout" toml:"request_timeout"`
	DefaultStaleAfter string               `yaml:"default_stale_after" toml:"default_stale_after"`
	Queries           map[string]fileQuery `yaml:"queries" toml:"queries"`
}

type fileQuery struct {
	StaleAfter      string `yaml:"stale_after" toml:"stale_after"`
	RefetchInterval string `yaml:"refetch_interval" toml:"refetch_interval"`
	Retry           *int   `yaml:"retry" toml:"retry"`
}

// Error reports an invalid configuration file.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Message)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		BackendURL:        DefaultBackendURL,
		TokenScope:        DefaultTokenScope,
		RequestTimeout:    DefaultRequestTimeout,
		DefaultStaleAfter: DefaultStaleAfter,
		Queries:           map[string]Query{},
	}
}

// Load reads path, or returns Default when path is empty. The backend URL
// environment override applies either way.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		cfg, err = Parse(path, data)
		if err != nil {
			return Config{}, err
		}
	}
	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.BackendURL = v
	}
	return cfg, nil
}

// Parse decodes data in the format named by path's extension.
func Parse(path string, data []byte) (Config, error) {
	var (
		raw map[string]any
		f   file
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, &Error{Path: path, Message: err.Error()}
		}
		if err := checkSchema(raw); err != nil {
			return Config{}, &Error{Path: path, Message: err.Error()}
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return Config{}, &Error{Path: path, Message: err.Error()}
		}
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return Config{}, &Error{Path: path, Message: err.Error()}
		}
		if err := checkSchema(raw); err != nil {
			return Config{}, &Error{Path: path, Message: err.Error()}
		}
		if err := toml.Unmarshal(data, &f); err != nil {
			return Config{}, &Error{Path: path, Message: err.Error()}
		}
	default:
		return Config{}, &Error{Path: path, Message: fmt.Sprintf("unsupported format %q (want .yaml, .yml or .toml)", ext)}
	}

	cfg, err := f.resolve()
	if err != nil {
		return Config{}, &Error{Path: path, Message: err.Error()}
	}
	return cfg, nil
}

func checkSchema(raw map[string]any) error {
	if raw == nil {
		raw = map[string]any{}
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

func (f file) resolve() (Config, error) {
	cfg := Default()
	if f.BackendURL != "" {
		cfg.BackendURL = f.BackendURL
	}
	if f.TokenScope != "" {
		cfg.TokenScope = f.TokenScope
	}
	cfg.JournalPath = f.JournalPath
	if cfg.TokenScope == "persistent" && cfg.JournalPath == "" {
		return Config{}, fmt.Errorf("token_scope persistent needs journal_path")
	}

	var err error
	if cfg.RequestTimeout, err = duration(f.RequestTimeout, DefaultRequestTimeout); err != nil {
		return Config{}, fmt.Errorf("request_timeout: %w", err)
	}
	if cfg.DefaultStaleAfter, err = duration(f.DefaultStaleAfter, DefaultStaleAfter); err != nil {
		return Config{}, fmt.Errorf("default_stale_after: %w", err)
	}

	names := make([]string, 0, len(f.Queries))
	for name := range f.Queries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fq := f.Queries[name]
		q := Query{Retry: fq.Retry}
		if q.StaleAfter, err = optionalDuration(fq.StaleAfter); err != nil {
			return Config{}, fmt.Errorf("queries.%s.stale_after: %w", name, err)
		}
		if q.RefetchInterval, err = optionalDuration(fq.RefetchInterval); err != nil {
			return Config{}, fmt.Errorf("queries.%s.refetch_interval: %w", name, err)
		}
		cfg.Queries[name] = q
	}
	return cfg, nil
}

func duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

func optionalDuration(s string) (*time.Duration, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
