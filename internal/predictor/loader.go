package predictor

import (
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/digital-twin-risk-engine/internal/domain"
)

// DefaultCacheSize bounds the number of parsed artifacts kept in memory.
const DefaultCacheSize = 16

// Loader reads model artifacts from disk and builds adapters. Parsed
// artifacts are cached by path, size and modification time.
type Loader struct {
	cache  *lru.Cache[string, *Artifact]
	logger *logrus.Logger
}

// NewLoader creates a loader with an LRU of the given size.
func NewLoader(cacheSize int, logger *logrus.Logger) (*Loader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *Artifact](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create artifact cache: %w", err)
	}
	return &Loader{cache: cache, logger: logger}, nil
}

// Load builds the adapter for condition from the artifact at path.
// Every failure is a ConfigurationError.
func (l *Loader) Load(condition domain.Condition, path string) (*Adapter, error) {
	component := string(condition) + " model artifact"
	if path == "" {
		return nil, domain.NewConfigurationError(component, path, fmt.Errorf("no artifact path configured"))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.NewConfigurationError(component, path, err)
	}
	if info.IsDir() {
		return nil, domain.NewConfigurationError(component, path, fmt.Errorf("path is a directory"))
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	art, ok := l.cache.Get(key)
	if !ok {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.NewConfigurationError(component, path, err)
		}
		art, err = ParseArtifact(raw)
		if err != nil {
			return nil, domain.NewConfigurationError(component, path, err)
		}
		l.cache.Add(key, art)

		l.logger.WithFields(logrus.Fields{
			"condition": condition,
			"path":      path,
			"version":   art.Version,
			"features":  len(art.Scaler.Features),
		}).Info("Model artifact loaded")
	}

	if art.Condition != condition {
		return nil, domain.NewConfigurationError(component, path,
			fmt.Errorf("artifact is for %q, expected %q", art.Condition, condition))
	}

	return NewAdapter(condition, &art.Model, &art.Scaler)
}

// LoadAll builds one adapter per condition from the models configuration.
// Relative artifact paths resolve against cfg.Dir.
func (l *Loader) LoadAll(cfg domain.ModelsConfig) (map[domain.Condition]*Adapter, error) {
	adapters := make(map[domain.Condition]*Adapter, 3)
	for _, c := range domain.Conditions() {
		a, err := l.Load(c, cfg.ResolvedPath(c))
		if err != nil {
			return nil, err
		}
		adapters[c] = a
	}
	return adapters, nil
}

// CachedArtifacts returns the number of parsed artifacts held in memory.
func (l *Loader) CachedArtifacts() int {
	return l.cache.Len()
}
