package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	ModulesConfig struct {
		Enable  bool   `yaml:"enable"`
		Pattern string `yaml:"pattern" validate:"required_if=Enable true"`
	}

	TransformConfig struct {
		SourceMap           SourceMapMode `yaml:"source_map" validate:"gte=0"`
		Minify              bool          `yaml:"minify"`
		AnalyzeDependencies bool          `yaml:"analyze_dependencies"`
		CheckResources      bool          `yaml:"check_resources"`
		CSSModules          ModulesConfig `yaml:"css_modules"`
	}

	InputConfig struct {
		Include          []string `yaml:"include" validate:"min=1,dive,required"`
		Exclude          []string `yaml:"exclude" validate:"dive,required"`
		RespectGitignore bool     `yaml:"respect_gitignore"`
		ForceCharset     string   `yaml:"force_charset"`
	}

	OutputConfig struct {
		NameTemplate          string `yaml:"name_template"`
		FileNameTransliterate bool   `yaml:"file_name_transliterate"`
		WriteDeps             bool   `yaml:"write_deps"`
		WriteMapping          bool   `yaml:"write_mapping"`
	}

	CacheConfig struct {
		MemoryEntries int    `yaml:"memory_entries" validate:"gte=0"`
		Path          string `yaml:"path,omitempty" validate:"omitempty,filepath"`
	}

	Config struct {
		Version   int             `yaml:"version" validate:"eq=1"`
		Transform TransformConfig `yaml:"transform"`
		Input     InputConfig     `yaml:"input"`
		Output    OutputConfig    `yaml:"output"`
		Cache     CacheConfig     `yaml:"cache"`
		Workers   int             `yaml:"workers" validate:"gte=0"`
		Logging   LoggingConfig   `yaml:"logging"`
		Reporting ReporterConfig  `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above, output name template is
	// expanded for every processed file, not when configuration is loaded
	NameTemplateFieldName TemplateFieldName = "name_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(NameTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

// ModulesPattern returns CSS Modules naming pattern or empty string when
// scoping is disabled.
func (c *TransformConfig) ModulesPattern() (string, bool) {
	if !c.CSSModules.Enable {
		return "", false
	}
	return c.CSSModules.Pattern, true
}
