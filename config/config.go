// Package config loads the YAML settings shared by the commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Search   Search   `yaml:"search"`
	Oracle   Oracle   `yaml:"oracle"`
	SelfPlay SelfPlay `yaml:"selfplay"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
}

type Search struct {
	// Simulations per move.
	Simulations int `yaml:"simulations"`
}

type Oracle struct {
	// ModelPath is an ONNX model. Empty means the uniform oracle.
	ModelPath     string        `yaml:"model_path"`
	SharedLibrary string        `yaml:"shared_library"`
	Sessions      int           `yaml:"sessions"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	ChannelsFirst bool          `yaml:"channels_first"`
	ApplySoftmax  bool          `yaml:"apply_softmax"`
	DisableCUDA   bool          `yaml:"disable_cuda"`
	// UniformValue is returned by the uniform oracle.
	UniformValue float32 `yaml:"uniform_value"`
}

type SelfPlay struct {
	Workers int `yaml:"workers"`
	// Games stops self-play after this many games. Zero runs until interrupted.
	Games int64 `yaml:"games"`
	// SampleMoves is the number of opening plies chosen by sampling visit counts.
	SampleMoves   int     `yaml:"sample_moves"`
	Temperature   float64 `yaml:"temperature"`
	GamesPerFlush int     `yaml:"games_per_flush"`
	OutDir        string  `yaml:"out_dir"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Search: Search{Simulations: 800},
		Oracle: Oracle{
			Sessions:     1,
			BatchSize:    64,
			BatchTimeout: time.Millisecond,
		},
		SelfPlay: SelfPlay{
			Workers:       8,
			SampleMoves:   8,
			Temperature:   1,
			GamesPerFlush: 50,
			OutDir:        "data/selfplay",
		},
		Server: Server{Addr: ":8080"},
		Log:    Log{Level: "info", Format: "console"},
	}
}

// Load overlays the YAML file at path on Default. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Search.Simulations <= 0 {
		errs = append(errs, fmt.Errorf("search.simulations must be positive, got %d", c.Search.Simulations))
	}
	if c.Oracle.Sessions <= 0 {
		errs = append(errs, fmt.Errorf("oracle.sessions must be positive, got %d", c.Oracle.Sessions))
	}
	if c.Oracle.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("oracle.batch_size must be positive, got %d", c.Oracle.BatchSize))
	}
	if c.Oracle.UniformValue < -1 || c.Oracle.UniformValue > 1 {
		errs = append(errs, fmt.Errorf("oracle.uniform_value must be in [-1, 1], got %v", c.Oracle.UniformValue))
	}
	if c.SelfPlay.Workers <= 0 {
		errs = append(errs, fmt.Errorf("selfplay.workers must be positive, got %d", c.SelfPlay.Workers))
	}
	if c.SelfPlay.Games < 0 {
		errs = append(errs, fmt.Errorf("selfplay.games must not be negative, got %d", c.SelfPlay.Games))
	}
	if c.SelfPlay.SampleMoves < 0 {
		errs = append(errs, fmt.Errorf("selfplay.sample_moves must not be negative, got %d", c.SelfPlay.SampleMoves))
	}
	if c.SelfPlay.Temperature <= 0 {
		errs = append(errs, fmt.Errorf("selfplay.temperature must be positive, got %v", c.SelfPlay.Temperature))
	}
	if c.SelfPlay.GamesPerFlush <= 0 {
		errs = append(errs, fmt.Errorf("selfplay.games_per_flush must be positive, got %d", c.SelfPlay.GamesPerFlush))
	}
	return errors.Join(errs...)
}
