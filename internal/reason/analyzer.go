package reason

import (
	"context"
	"sort"

	"fleetops/internal/model"
)

// SituationAnalyzer turns a fleet snapshot into detected issues with a
// confidence and risk assessment. Implementations must not mutate the
// snapshot.
type SituationAnalyzer interface {
	Name() string
	Analyze(ctx context.Context, snap model.Snapshot) (model.ReasoningResult, error)
}

// PrioritizeIssues orders issues most urgent first: severity rank, then
// detection time.
func PrioritizeIssues(issues []model.Issue) []model.Issue {
	out := append([]model.Issue(nil), issues...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := model.SeverityRank(out[i].Severity), model.SeverityRank(out[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out
}
