package odm

// JoinPair holds a join document's identity and the target identity it
// points at.
type JoinPair[S, T comparable] struct {
	Source S
	Target T
}

// UniqueTargets extracts deduplicated target values from a slice of
// JoinPair, keeping first-seen order.
func UniqueTargets[S, T comparable](pairs []JoinPair[S, T]) []T {
	seen := make(map[T]struct{}, len(pairs))
	result := make([]T, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p.Target]; !ok {
			seen[p.Target] = struct{}{}
			result = append(result, p.Target)
		}
	}
	return result
}

// joinPairs reads the target identity held in field by each join document.
// A join document without one cannot be projected.
func joinPairs(assoc string, joins []*Document, field string) ([]JoinPair[string, string], error) {
	pairs := make([]JoinPair[string, string], len(joins))
	for i, j := range joins {
		target, _ := j.Get(field).(string)
		if target == "" {
			return nil, &ProjectionError{Association: assoc, Field: field, Reason: "is empty on join document " + j.id}
		}
		pairs[i] = JoinPair[string, string]{Source: j.id, Target: target}
	}
	return pairs, nil
}
