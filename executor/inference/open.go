package inference

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/brensch/gomokuzero/config"
)

// Open builds the oracle described by cfg. Without a model path it returns
// Uniform. The returned close function is never nil.
func Open(cfg config.Oracle) (Predictor, func() error, error) {
	if cfg.ModelPath == "" {
		log.Warn().Float32("value", cfg.UniformValue).Msg("no model configured, using uniform oracle")
		return Uniform{Value: cfg.UniformValue}, func() error { return nil }, nil
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, nil, fmt.Errorf("model %s: %w", cfg.ModelPath, err)
	}

	clientCfg := OnnxClientConfig{
		BatchSize:     cfg.BatchSize,
		BatchTimeout:  cfg.BatchTimeout,
		SharedLibrary: cfg.SharedLibrary,
		ChannelsFirst: cfg.ChannelsFirst,
		ApplySoftmax:  cfg.ApplySoftmax,
		DisableCUDA:   cfg.DisableCUDA,
	}
	if cfg.Sessions <= 1 {
		client, err := NewOnnxClientWithConfig(cfg.ModelPath, clientCfg)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
	pool, err := NewSessionPool(cfg.ModelPath, cfg.Sessions, clientCfg)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

// ResolveModelPath follows symlinks so records name the actual model file.
func ResolveModelPath(path string) string {
	if path == "" {
		return ""
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return resolved
	}
	return abs
}
