package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings configures the matbench tool itself (matbench.yaml). It is
// unrelated to the CI configuration document managed by Store.
type Settings struct {
	Results     ResultsSettings `yaml:"results"`
	Parallel    int             `yaml:"parallel"`
	Schema      string          `yaml:"schema"`
	Server      ServerSettings  `yaml:"server"`
	Archive     ArchiveSettings `yaml:"archive"`
	Influx      InfluxSettings  `yaml:"influx"`
	CommandArgs CommandArgs     `yaml:"command_args"`
}

type ResultsSettings struct {
	Dir string `yaml:"dir"`
}

type ServerSettings struct {
	Addr string `yaml:"addr"`
}

type ArchiveSettings struct {
	Dir string `yaml:"dir"`
}

type InfluxSettings struct {
	URL    string `yaml:"url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type CommandArgs struct {
	// DumpCommand renders command_args.yml after configuration changes.
	DumpCommand string `yaml:"dump_command"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Results:  ResultsSettings{Dir: "results"},
		Parallel: 4,
		Schema:   "kserve-llm",
		Server:   ServerSettings{Addr: ":8080"},
	}
}

// LoadSettings reads path over the defaults. A missing file yields the
// defaults when optional is set.
func LoadSettings(path string, optional bool) (*Settings, error) {
	cfg := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && optional {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	if err := validateSettings(cfg); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return cfg, nil
}

func validateSettings(cfg *Settings) error {
	if cfg.Results.Dir == "" {
		return fmt.Errorf("results.dir is required")
	}
	if cfg.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1")
	}
	if cfg.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if cfg.Influx.URL != "" && (cfg.Influx.Org == "" || cfg.Influx.Bucket == "") {
		return fmt.Errorf("influx: org and bucket are required with url")
	}
	return nil
}
