package providers

import "civic/internal/civic/models"

// Better reports whether a ranks ahead of b: higher confidence, then more
// complete, then earlier in the provider priority order.
func Better(a, b models.PlaceCandidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if ca, cb := a.Completeness(), b.Completeness(); ca != cb {
		return ca > cb
	}
	return a.Priority < b.Priority
}

// SelectBest returns the top-ranked candidate. ok is false for an empty slice.
func SelectBest(candidates []models.PlaceCandidate) (best models.PlaceCandidate, ok bool) {
	for i, c := range candidates {
		if i == 0 || Better(c, best) {
			best = c
		}
	}
	return best, len(candidates) > 0
}
