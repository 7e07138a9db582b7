package optimize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// seedFile mirrors the accepted on-disk shapes: either a full configuration
// with a "bot" section or a bare long/short pair.
type seedFile struct {
	Bot   *StrategyConfig    `json:"bot" yaml:"bot"`
	Long  map[string]float64 `json:"long" yaml:"long"`
	Short map[string]float64 `json:"short" yaml:"short"`
}

func parseSeedConfig(path string, data []byte) (*StrategyConfig, error) {
	var sf seedFile
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &sf)
	case ".json":
		err = json.Unmarshal(data, &sf)
	default:
		return nil, fmt.Errorf("unsupported seed format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if sf.Bot != nil {
		return sf.Bot, nil
	}
	if sf.Long == nil && sf.Short == nil {
		return nil, fmt.Errorf("no bot parameters found")
	}
	cfg := &StrategyConfig{Long: sf.Long, Short: sf.Short}
	if cfg.Long == nil {
		cfg.Long = map[string]float64{}
	}
	if cfg.Short == nil {
		cfg.Short = map[string]float64{}
	}
	return cfg, nil
}

// LoadSeedConfigs reads starting configurations from a single file or every
// regular file in a directory. A file that fails to load or parse is logged
// and skipped; seed loading never aborts a run.
func LoadSeedConfigs(path string, logger zerolog.Logger) []*StrategyConfig {
	if path == "" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to read starting configs")
		return nil
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("failed to list starting configs")
			return nil
		}
		files = files[:0]
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}

	var configs []*StrategyConfig
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			logger.Error().Err(err).Str("path", file).Msg("failed to read starting config")
			continue
		}
		cfg, err := parseSeedConfig(file, data)
		if err != nil {
			logger.Error().Err(err).Str("path", file).Msg("failed to parse starting config")
			continue
		}
		configs = append(configs, cfg)
	}
	logger.Info().Int("count", len(configs)).Str("path", path).Msg("loaded starting configs")
	return configs
}

// seedIndividuals encodes seed configurations into individuals: configs
// whose parameter set does not match the template are logged and skipped,
// genomes are deduplicated by content hash, and every kept genome is
// clamped into bounds.
func seedIndividuals(configs []*StrategyConfig, template *StrategyConfig, bounds *ParamBounds, logger zerolog.Logger) []*Individual {
	seen := make(map[string]bool, len(configs))
	var out []*Individual
	for i, cfg := range configs {
		if !cfg.MatchesTemplate(template) {
			logger.Error().Int("seed", i).Msg("starting config does not match template, skipping")
			continue
		}
		genome := Encode(cfg)
		hash := hashGenome(genome)
		if seen[hash] {
			continue
		}
		seen[hash] = true
		bounds.Clamp(genome)
		out = append(out, &Individual{Genome: genome})
	}
	return out
}
