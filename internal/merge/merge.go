package merge

import (
	"sort"

	"github.com/dvloznov/card-segments/internal/domain"
)

// Stats describes how many rows survived the join.
type Stats struct {
	Features           int `json:"features"`
	Assignments        int `json:"assignments"`
	Joined             int `json:"joined"`
	DroppedFeatures    int `json:"dropped_features"`    // feature rows without an assignment
	DroppedAssignments int `json:"dropped_assignments"` // assignments without a feature row
	Duplicates         int `json:"duplicates"`
}

// Merge inner-joins features and assignments on account id. Accounts present on only
// one side are dropped; for repeated keys the first occurrence wins. The result is
// ordered by account id.
func Merge(features domain.FeatureTable, assignments domain.AssignmentTable) (domain.CanonicalTable, Stats) {
	stats := Stats{Features: len(features), Assignments: len(assignments)}

	segments := make(map[int64]int, len(assignments))
	for _, a := range assignments {
		if _, dup := segments[a.AccountID]; dup {
			stats.Duplicates++
			continue
		}
		segments[a.AccountID] = a.SegmentID
	}

	out := make(domain.CanonicalTable, 0, min(len(features), len(segments)))
	matched := make(map[int64]bool, len(features))
	for _, fv := range features {
		if matched[fv.AccountID] {
			stats.Duplicates++
			continue
		}
		seg, ok := segments[fv.AccountID]
		if !ok {
			stats.DroppedFeatures++
			continue
		}
		matched[fv.AccountID] = true
		out = append(out, domain.Record{FeatureVector: fv, SegmentID: seg})
	}

	stats.Joined = len(out)
	stats.DroppedAssignments = len(segments) - len(out)

	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, stats
}
