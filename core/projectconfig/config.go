package projectconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

const DefaultPath = ".ctxlib/config.yaml"

type Config struct {
	Budget  BudgetDefaults  `yaml:"budget"`
	Sources SourceDefaults  `yaml:"sources"`
	Advisor AdvisorDefaults `yaml:"advisor"`
}

// BudgetDefaults leaves a field at zero when the project does not override it.
type BudgetDefaults struct {
	Total int          `yaml:"total"`
	Core  int          `yaml:"core"`
	Split *SplitConfig `yaml:"split"`
}

type SplitConfig struct {
	Core         float64 `yaml:"core"`
	WaveSpecific float64 `yaml:"wave_specific"`
	OnDemand     float64 `yaml:"on_demand"`
}

type SourceDefaults struct {
	HubFiles     []HubFile `yaml:"hub_files"`
	SpecPatterns []string  `yaml:"spec_patterns"`
	SpecLimit    *int      `yaml:"spec_limit"`
}

type HubFile struct {
	Path    string `yaml:"path"`
	Purpose string `yaml:"purpose"`
}

type AdvisorDefaults struct {
	ResumeOrRefreshMaxPercent *int `yaml:"resume_or_refresh_max_percent"`
	RefreshMaxPercent         *int `yaml:"refresh_max_percent"`
}

func Load(path string, allowMissing bool) (Config, error) {
	content, err := readConfig(path, allowMissing)
	if err != nil || content == nil {
		return Config{}, err
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse project config: %w", err)
	}
	configuration.normalize()
	if err := configuration.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid project config: %w", err)
	}
	return configuration, nil
}

// LoadAdvisor decodes and validates only the advisor section, so problems
// in budget or sources do not block verification.
func LoadAdvisor(path string, allowMissing bool) (AdvisorDefaults, error) {
	content, err := readConfig(path, allowMissing)
	if err != nil || content == nil {
		return AdvisorDefaults{}, err
	}

	var section struct {
		Advisor AdvisorDefaults `yaml:"advisor"`
	}
	if err := yaml.Unmarshal(content, &section); err != nil {
		return AdvisorDefaults{}, fmt.Errorf("parse project config: %w", err)
	}
	if err := section.Advisor.validate(); err != nil {
		return AdvisorDefaults{}, fmt.Errorf("invalid project config: %w", err)
	}
	return section.Advisor, nil
}

// readConfig returns nil content for a missing (when allowed) or blank file.
func readConfig(path string, allowMissing bool) ([]byte, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return nil, nil
		}
		return nil, fmt.Errorf("read project config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, nil
	}
	return content, nil
}

func (configuration *Config) normalize() {
	hubFiles := configuration.Sources.HubFiles[:0]
	for _, hubFile := range configuration.Sources.HubFiles {
		hubFile.Path = strings.TrimSpace(hubFile.Path)
		hubFile.Purpose = strings.TrimSpace(hubFile.Purpose)
		if hubFile.Path == "" {
			continue
		}
		hubFiles = append(hubFiles, hubFile)
	}
	if configuration.Sources.HubFiles != nil {
		configuration.Sources.HubFiles = hubFiles
	}
	patterns := make([]string, 0, len(configuration.Sources.SpecPatterns))
	for _, pattern := range configuration.Sources.SpecPatterns {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	if len(patterns) == 0 {
		patterns = nil
	}
	configuration.Sources.SpecPatterns = patterns
}

func (configuration Config) validate() error {
	if configuration.Budget.Total < 0 {
		return fmt.Errorf("budget.total must be >= 0")
	}
	if configuration.Budget.Core < 0 {
		return fmt.Errorf("budget.core must be >= 0")
	}
	if split := configuration.Budget.Split; split != nil {
		for name, value := range map[string]float64{
			"core":          split.Core,
			"wave_specific": split.WaveSpecific,
			"on_demand":     split.OnDemand,
		} {
			if value < 0 || value > 1 {
				return fmt.Errorf("budget.split.%s must be within [0,1]", name)
			}
		}
	}
	if limit := configuration.Sources.SpecLimit; limit != nil && *limit < 0 {
		return fmt.Errorf("sources.spec_limit must be >= 0")
	}
	return configuration.Advisor.validate()
}

func (advisor AdvisorDefaults) validate() error {
	lower := advisor.ResumeOrRefreshMaxPercent
	upper := advisor.RefreshMaxPercent
	for name, value := range map[string]*int{
		"resume_or_refresh_max_percent": lower,
		"refresh_max_percent":           upper,
	} {
		if value != nil && (*value < 0 || *value > 100) {
			return fmt.Errorf("advisor.%s must be within [0,100]", name)
		}
	}
	if lower != nil && upper != nil && *lower > *upper {
		return fmt.Errorf("advisor.resume_or_refresh_max_percent must not exceed refresh_max_percent")
	}
	return nil
}
