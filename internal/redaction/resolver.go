package redaction

import (
	"sort"

	"go.uber.org/zap"
)

// Resolve reduces raw matches to a non-overlapping set. Matches are ranked by
// descending length (longer matches are assumed more specific: a full card
// number beats an embedded phone-shaped substring), then ascending start
// offset, then rule registration order, and accepted greedily when their span
// does not intersect any already-accepted span. The result is returned in
// ascending start order.
//
// Two rules matching the identical span is not an error: the first in rank
// order wins and the loss is logged as an ambiguous classification.
func Resolve(matches []RawMatch, logger *zap.Logger) []ResolvedMatch {
	if len(matches) == 0 {
		return nil
	}

	ranked := make([]RawMatch, len(matches))
	copy(ranked, matches)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Len() != ranked[j].Len() {
			return ranked[i].Len() > ranked[j].Len()
		}
		if ranked[i].Start != ranked[j].Start {
			return ranked[i].Start < ranked[j].Start
		}
		return ranked[i].ruleOrder < ranked[j].ruleOrder
	})

	var accepted []ResolvedMatch
	for _, candidate := range ranked {
		conflict := false
		for _, kept := range accepted {
			if candidate.overlaps(kept.RawMatch) {
				conflict = true
				if candidate.Start == kept.Start && candidate.End == kept.End {
					logger.Debug("Ambiguous classification for span",
						zap.String("kept", string(kept.Type)),
						zap.String("dropped", string(candidate.Type)),
						zap.Int("start", candidate.Start),
						zap.Int("end", candidate.End),
					)
				}
				break
			}
		}
		if !conflict {
			accepted = append(accepted, ResolvedMatch{RawMatch: candidate})
		}
	}

	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].Start < accepted[j].Start
	})

	return accepted
}
