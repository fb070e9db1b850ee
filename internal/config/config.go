// Package config loads honeycluster.yaml over built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/melonattacker/honeycluster/internal/cluster"
	"github.com/melonattacker/honeycluster/internal/features"
	"github.com/melonattacker/honeycluster/internal/sampling"
)

type Features struct {
	LogCompress bool `yaml:"log_compress"`
}

func (f Features) Options() features.Options {
	return features.Options{LogCompress: f.LogCompress}
}

type Cluster struct {
	Seed     uint64         `yaml:"seed"`
	Restarts int            `yaml:"restarts"`
	MaxIter  int            `yaml:"max_iter"`
	Tol      float64        `yaml:"tol"`
	Views    []cluster.View `yaml:"views"`
}

type Projection struct {
	Enabled bool `yaml:"enabled"`
	Dims    int  `yaml:"dims"`
}

type Config struct {
	Sampling   sampling.Config `yaml:"sampling"`
	Features   Features        `yaml:"features"`
	Dedupe     bool            `yaml:"dedupe"`
	Cluster    Cluster         `yaml:"cluster"`
	Projection Projection      `yaml:"projection"`
	// Vocabulary overrides the embedded command vocabulary.
	Vocabulary string `yaml:"vocabulary"`
	Metrics    bool   `yaml:"metrics"`
}

func Default() Config {
	return Config{
		Sampling: sampling.DefaultConfig(),
		Dedupe:   true,
		Cluster: Cluster{
			Seed:     sampling.DefaultSeed,
			Restarts: cluster.DefaultRestarts,
			MaxIter:  cluster.DefaultMaxIter,
			Tol:      cluster.DefaultTol,
			Views:    cluster.DefaultViews(),
		},
		Projection: Projection{Enabled: true, Dims: 2},
		Metrics:    true,
	}
}

// Load reads path over the defaults. A missing file is not an error unless
// required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decode(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Sampling.Validate(); err != nil {
		return err
	}
	if c.Cluster.Restarts < 0 || c.Cluster.MaxIter < 0 || c.Cluster.Tol < 0 {
		return fmt.Errorf("cluster restarts, max_iter and tol must not be negative")
	}
	if len(c.Cluster.Views) == 0 {
		return fmt.Errorf("no cluster views configured")
	}
	seen := map[string]bool{}
	for _, v := range c.Cluster.Views {
		if err := v.Validate(); err != nil {
			return err
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate view %q", v.Name)
		}
		seen[v.Name] = true
	}
	if c.Projection.Enabled && c.Projection.Dims < 1 {
		return fmt.Errorf("projection dims must be positive")
	}
	return nil
}

// EnabledViews returns the views that are not disabled, in config order.
func (c Config) EnabledViews() []cluster.View {
	var out []cluster.View
	for _, v := range c.Cluster.Views {
		if !v.Disabled {
			out = append(out, v)
		}
	}
	return out
}

// View finds a configured view by name.
func (c Config) View(name string) (cluster.View, bool) {
	for _, v := range c.Cluster.Views {
		if v.Name == name {
			return v, true
		}
	}
	return cluster.View{}, false
}

// Marshal renders the effective config, e.g. for `status --json`.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
