package library

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/davidahmann/ctxlib/core/advisor"
	"github.com/davidahmann/ctxlib/core/budget"
	"github.com/davidahmann/ctxlib/core/discover"
	ctxerrors "github.com/davidahmann/ctxlib/core/errors"
	"github.com/davidahmann/ctxlib/core/gather"
	"github.com/davidahmann/ctxlib/core/projectconfig"
	"github.com/davidahmann/ctxlib/core/vcs"
	"github.com/davidahmann/ctxlib/core/workflow"
)

const projectConfigHint = "fix " + projectconfig.DefaultPath + " or remove it to use defaults"

// Overrides carries the budget flags as typed on the command line.
// Total stays a string so a malformed value can be warned about and ignored.
type Overrides struct {
	Total   string
	Core    int
	CoreSet bool
}

type Settings struct {
	Allocation budget.Allocation
	Gather     gather.Config
	Policy     advisor.Policy
}

// LoadSettings merges built-in defaults, the project config under root and
// command-line overrides, in that order of increasing precedence.
func LoadSettings(root string, overrides Overrides, warn func(string)) (Settings, error) {
	configuration, err := projectconfig.Load(filepath.Join(root, projectconfig.DefaultPath), true)
	if err != nil {
		return Settings{}, ctxerrors.Wrap(err, ctxerrors.CategoryInvalidInput, "project_config_invalid", projectConfigHint, false)
	}

	allocation, err := resolveAllocation(configuration.Budget, overrides, warn)
	if err != nil {
		return Settings{}, err
	}

	policy, err := resolvePolicy(configuration.Advisor)
	if err != nil {
		return Settings{}, err
	}

	gatherConfig := gather.DefaultConfig()
	if hubs := configuration.Sources.HubFiles; len(hubs) > 0 {
		gatherConfig.HubFiles = make([]gather.Candidate, 0, len(hubs))
		for _, hub := range hubs {
			gatherConfig.HubFiles = append(gatherConfig.HubFiles, gather.Candidate{Path: hub.Path, Purpose: hub.Purpose})
		}
	}
	gatherConfig.RequiredReading = workflow.Reader{Warnings: warn}
	gatherConfig.Specs = discover.NewGlobber(configuration.Sources.SpecPatterns)
	if limit := configuration.Sources.SpecLimit; limit != nil {
		gatherConfig.SpecLimit = *limit
	}
	gatherConfig.Checkpoint = vcs.Git{Dir: root}

	return Settings{Allocation: allocation, Gather: gatherConfig, Policy: policy}, nil
}

// LoadPolicy reads only the advisor section of the project config under root.
// Verification uses it so a broken budget or sources section cannot block it.
func LoadPolicy(root string) (advisor.Policy, error) {
	defaults, err := projectconfig.LoadAdvisor(filepath.Join(root, projectconfig.DefaultPath), true)
	if err != nil {
		return advisor.Policy{}, ctxerrors.Wrap(err, ctxerrors.CategoryInvalidInput, "project_config_invalid", projectConfigHint, false)
	}
	return resolvePolicy(defaults)
}

func resolvePolicy(defaults projectconfig.AdvisorDefaults) (advisor.Policy, error) {
	policy := advisor.DefaultPolicy()
	if value := defaults.ResumeOrRefreshMaxPercent; value != nil {
		policy.ResumeOrRefreshMaxPercent = *value
	}
	if value := defaults.RefreshMaxPercent; value != nil {
		policy.RefreshMaxPercent = *value
	}
	if err := policy.Validate(); err != nil {
		return advisor.Policy{}, ctxerrors.Wrap(err, ctxerrors.CategoryInvalidInput, "project_config_invalid", projectConfigHint, false)
	}
	return policy, nil
}

func resolveAllocation(defaults projectconfig.BudgetDefaults, overrides Overrides, warn func(string)) (budget.Allocation, error) {
	split := budget.DefaultSplit()
	if defaults.Split != nil {
		split = budget.Split{
			Core:         defaults.Split.Core,
			WaveSpecific: defaults.Split.WaveSpecific,
			OnDemand:     defaults.Split.OnDemand,
		}
		if err := split.Validate(); err != nil {
			return budget.Allocation{}, ctxerrors.Wrap(err, ctxerrors.CategoryInvalidInput, "project_config_invalid", projectConfigHint, false)
		}
	}

	total := budget.DefaultTotal
	if defaults.Total > 0 {
		total = defaults.Total
	}
	totalOverridden := false
	if raw := strings.TrimSpace(overrides.Total); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			warn(fmt.Sprintf("invalid --budget value %q, using %d", raw, total))
		} else {
			total = parsed
			totalOverridden = true
		}
	}

	allocation := budget.Allocate(total, split)
	// A configured core only applies to the configured total.
	if !totalOverridden && defaults.Core > 0 {
		allocation = allocation.WithCore(defaults.Core)
	}
	if overrides.CoreSet {
		if overrides.Core < 0 {
			return budget.Allocation{}, ctxerrors.Wrap(
				fmt.Errorf("--core must be >= 0, got %d", overrides.Core),
				ctxerrors.CategoryInvalidInput, "invalid_core_budget", "pass a non-negative token count", false,
			)
		}
		allocation = allocation.WithCore(overrides.Core)
	}
	return allocation, nil
}
