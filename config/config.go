package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/codepage"
	"github.com/rawsec/evtxrecord/evtx"
	"github.com/rawsec/evtxrecord/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// ASCII codepage of 8-bit strings
	Codepage        int  `yaml:"codepage"`
	VerifyChecksums bool `yaml:"verify_checksums"`
	VerifySizeCopy  bool `yaml:"verify_size_copy"`
	// chunks decoded concurrently
	Workers int `yaml:"workers"`

	Log    LogConfig    `yaml:"log"`
	Output OutputConfig `yaml:"output"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// rotated log file, stderr when empty
	File string `yaml:"file"`
	JSON bool   `yaml:"json"`
}

type OutputConfig struct {
	// add the rendered XML to every record
	XML bool `yaml:"xml"`
}

func Default() *Config {
	return &Config{
		Codepage:        int(codepage.DefaultASCII),
		VerifyChecksums: true,
		Workers:         evtx.MaxJobs,
		Log:             LogConfig{Level: "info"},
	}
}

// Load reads a YAML configuration. Missing keys keep their default value.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(err, "config %s", filename)
	}
	if err = config.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", filename)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if !codepage.Codepage(c.Codepage).Valid() {
		return errors.Wrapf(codepage.ErrUnsupportedCodepage, "codepage %d", c.Codepage)
	}
	if c.Workers < 0 {
		return errors.Errorf("negative workers %d", c.Workers)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Options returns the decoding options of the configuration.
func (c *Config) Options() evtx.Options {
	workers := c.Workers
	if workers == 0 {
		workers = evtx.MaxJobs
	}
	return evtx.Options{
		Codepage:        codepage.Codepage(c.Codepage),
		VerifyChecksums: c.VerifyChecksums,
		VerifySizeCopy:  c.VerifySizeCopy,
		Workers:         workers,
	}
}

// InitLogger sets up the module logger from the log section.
func (c *Config) InitLogger() error {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	log.InitLogger(level, c.Log.File, c.Log.JSON)
	return nil
}
