package strategy

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// strategyFile is the on-disk YAML layout: a named list of strategy sets so
// one file can hold presets for different entry styles.
type strategyFile struct {
	Profiles []struct {
		Name       string   `yaml:"name"`
		Strategies []Config `yaml:"strategies"`
	} `yaml:"profiles"`
}

// LoadProfiles reads strategy profiles from a YAML file. Invalid strategies
// are skipped with a warning rather than failing the whole file; a profile
// with no surviving strategies is dropped.
func LoadProfiles(path string, logger *zap.Logger) (map[string][]Config, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies file: %w", err)
	}

	var file strategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse strategies YAML: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, fmt.Errorf("no strategy profiles found in %s", cleanPath)
	}

	profiles := make(map[string][]Config, len(file.Profiles))
	for _, profile := range file.Profiles {
		if profile.Name == "" {
			logger.Warn("Skipping unnamed strategy profile")
			continue
		}

		valid := make([]Config, 0, len(profile.Strategies))
		for i := range profile.Strategies {
			cfg := profile.Strategies[i]
			if err := cfg.Validate(); err != nil {
				logger.Warn("Skipping invalid strategy",
					zap.String("profile", profile.Name),
					zap.String("kind", string(cfg.Kind)),
					zap.Error(err))
				continue
			}
			valid = append(valid, cfg)
		}
		if len(valid) == 0 {
			logger.Warn("Strategy profile has no valid strategies", zap.String("profile", profile.Name))
			continue
		}

		profiles[profile.Name] = valid
		logger.Info("Loaded strategy profile",
			zap.String("profile", profile.Name),
			zap.Int("strategies", len(valid)))
	}

	if len(profiles) == 0 {
		return nil, fmt.Errorf("no usable strategy profiles in %s", cleanPath)
	}
	return profiles, nil
}
