package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models bonaso.yml: the catalog of enumerated dimension domains
// the breakdown engine resolves against.
type Config struct {
	Catalog struct {
		Sexes           []string `yaml:"sexes"`
		AgeRanges       []string `yaml:"age_ranges"`
		Districts       []string `yaml:"districts"`
		KPTypes         []string `yaml:"kp_types"`
		DisabilityTypes []string `yaml:"disability_types"`
		Platforms       []string `yaml:"platforms"`
	} `yaml:"catalog"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run 'bonaso config init'", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures every enumerated domain is non-empty and free of
// duplicate labels, since domain sizes determine bucket counts.
func (c *Config) Validate() error {
	domains := map[string][]string{
		"sexes":            c.Catalog.Sexes,
		"age_ranges":       c.Catalog.AgeRanges,
		"districts":        c.Catalog.Districts,
		"kp_types":         c.Catalog.KPTypes,
		"disability_types": c.Catalog.DisabilityTypes,
		"platforms":        c.Catalog.Platforms,
	}
	for name, values := range domains {
		if len(values) == 0 {
			return fmt.Errorf("config.catalog.%s is required", name)
		}
		seen := map[string]bool{}
		for _, v := range values {
			if v == "" {
				return fmt.Errorf("config.catalog.%s contains an empty label", name)
			}
			if seen[v] {
				return fmt.Errorf("config.catalog.%s contains duplicate label %s", name, v)
			}
			seen[v] = true
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bonaso.yml")
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `catalog:
  sexes: [Male, Female, Non_Binary]

  age_ranges:
    - under_18
    - 18_24
    - 25_34
    - 35_49
    - 50_plus

  districts:
    - Central
    - Chobe
    - Ghanzi
    - Kgalagadi
    - Kgatleng
    - Kweneng
    - North_East
    - North_West
    - South_East
    - Southern

  kp_types:
    - FSW
    - MSM
    - PWID
    - TG
    - Prisoner

  disability_types:
    - Visual
    - Hearing
    - Physical
    - Intellectual
    - Psychosocial

  platforms:
    - Facebook
    - Instagram
    - TikTok
    - WhatsApp
    - Radio
`
