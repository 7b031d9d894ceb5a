package advisor

import "fmt"

type Recommendation string

const (
	Resume          Recommendation = "RESUME"
	ResumeOrRefresh Recommendation = "RESUME_OR_REFRESH"
	Refresh         Recommendation = "REFRESH"
	Restart         Recommendation = "RESTART"
)

const (
	ExitResume  = 0
	ExitRefresh = 1
	ExitRestart = 2
)

// Policy holds the inclusive drift ceilings, in whole percent, for the two
// intermediate recommendations.
type Policy struct {
	ResumeOrRefreshMaxPercent int
	RefreshMaxPercent         int
}

func DefaultPolicy() Policy {
	return Policy{ResumeOrRefreshMaxPercent: 10, RefreshMaxPercent: 30}
}

func (policy Policy) Validate() error {
	if policy.ResumeOrRefreshMaxPercent < 0 || policy.ResumeOrRefreshMaxPercent > 100 {
		return fmt.Errorf("resume_or_refresh_max_percent must be within [0,100]")
	}
	if policy.RefreshMaxPercent < 0 || policy.RefreshMaxPercent > 100 {
		return fmt.Errorf("refresh_max_percent must be within [0,100]")
	}
	if policy.ResumeOrRefreshMaxPercent > policy.RefreshMaxPercent {
		return fmt.Errorf("resume_or_refresh_max_percent must not exceed refresh_max_percent")
	}
	return nil
}

// Recommend applies the decision table top-down: no drift resumes, any
// deletion restarts, then the changed ratio is compared against the policy
// ceilings. total counts every file examined, including read errors.
func (policy Policy) Recommend(changed, deleted, total int) (Recommendation, string) {
	percent := 0.0
	if total > 0 {
		percent = float64(changed) / float64(total) * 100
	}
	prefix := fmt.Sprintf("%d changed, %d deleted of %d files (%.0f%% drift).", changed, deleted, total, percent)

	switch {
	case changed == 0 && deleted == 0:
		return Resume, prefix + " All context files unchanged. Safe to continue."
	case deleted > 0:
		return Restart, fmt.Sprintf("%s %d required files deleted. Workflow may fail.", prefix, deleted)
	case total <= 0:
		return Resume, prefix + " No files checked. Nothing can drift."
	case changed*100 <= total*policy.ResumeOrRefreshMaxPercent:
		return ResumeOrRefresh, prefix + " Minor drift - can resume or refresh."
	case changed*100 <= total*policy.RefreshMaxPercent:
		return Refresh, prefix + " Recommend refreshing context."
	default:
		return Restart, prefix + " Significant drift - restart recommended."
	}
}

// ExitCode maps a recommendation to the verify exit status.
func ExitCode(recommendation Recommendation) int {
	switch recommendation {
	case Resume:
		return ExitResume
	case ResumeOrRefresh, Refresh:
		return ExitRefresh
	default:
		return ExitRestart
	}
}
