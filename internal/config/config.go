// Package config loads the streamhubd YAML configuration file and watches
// it for changes. streamhubd reapplies only log_level on change; relay
// destinations and hook bindings are read once at startup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File mirrors the on-disk YAML shape; zero values mean "use the
// flag/default instead". At startup streamhubd copies ListenAddr,
// MetricsAddr, RelayDestinations, RelayPullSources, Hooks.Scripts and
// Hooks.Webhooks into any setting the command line left at its default;
// LogLevel is applied only when the watcher reloads the file. ChunkSize
// and the remaining Hooks fields are parsed but not applied.
type File struct {
	ListenAddr        string       `yaml:"listen_addr"`
	MetricsAddr       string       `yaml:"metrics_addr"`
	LogLevel          string       `yaml:"log_level"`
	ChunkSize         uint32       `yaml:"chunk_size"`
	RelayDestinations []string     `yaml:"relay_destinations"`
	RelayPullSources  []PullSource `yaml:"relay_pull_sources"`

	Hooks struct {
		Scripts     []string `yaml:"scripts"`
		Webhooks    []string `yaml:"webhooks"`
		StdioFormat string   `yaml:"stdio_format"`
		Timeout     string   `yaml:"timeout"`
		Concurrency int      `yaml:"concurrency"`
	} `yaml:"hooks"`
}

// PullSource maps one local app/name pair onto the upstream RTMP URL the
// pull relay dials when a subscriber asks for that stream and nothing is
// live locally yet.
type PullSource struct {
	App  string `yaml:"app"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads and parses the YAML file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &f, nil
}
