package buildcache

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// Config is the slice of the console build configuration the cache cares about.
// Only the fields read by DeriveKey influence the cache key.
type Config struct {
	// Key fields
	Repository        string           `toml:"repository"`          // source-location identifier
	TagName           string           `toml:"tag_name"`            // release/tag identifier
	BundleParser      bool             `toml:"bundle_parser"`       // bundle the API-description parser library
	DisableTryIt      bool             `toml:"disable_try_it"`      // drop the request console library
	DisableCodeEditor bool             `toml:"disable_code_editor"` // drop the code editor library
	DisableMarkdown   bool             `toml:"disable_markdown"`    // drop the markdown renderer library
	Theme             string           `toml:"theme"`               // custom theme file path
	Attributes        []map[string]any `toml:"attributes"`          // attributes injected into the output markup

	// Everything below is ignored by the key.
	DisableCache bool   `toml:"disable_cache"`
	Verbose      bool   `toml:"verbose"`
	OutputDir    string `toml:"output_dir"`
	Platform     string `toml:"platform"` // test/override hook for Locate
}

// LoadConfig reads a TOML configuration file from fs.
// Unknown keys are rejected so typos in key fields do not silently share a cache entry.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	var cfg Config

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("parse config: %s", strict.String())
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Repository = strings.TrimSpace(c.Repository)
	c.TagName = strings.TrimSpace(c.TagName)
	c.Theme = strings.TrimSpace(c.Theme)
	c.OutputDir = strings.TrimSpace(c.OutputDir)
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Theme != "" && (strings.HasSuffix(c.Theme, "/") || strings.HasSuffix(c.Theme, `\`)) {
		return fmt.Errorf("theme: %q is a directory, expected a file", c.Theme)
	}
	if c.Platform != "" && !Platform(c.Platform).Known() {
		return fmt.Errorf("platform: unknown value %q", c.Platform)
	}
	for i, attrs := range c.Attributes {
		for name := range attrs {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("attributes[%d]: empty attribute name", i)
			}
		}
	}
	return nil
}
