// Package leaderboard derives the public ranking from the full set of stored
// player states. It is a projection: recomputed on every save, never stored.
package leaderboard

import "sort"

type Entry struct {
	Username string  `json:"username"`
	Currency float64 `json:"currency"`
}

// Compute ranks entries by currency descending and truncates to limit. Ties
// keep their input order. The full sort per save is O(n log n); fine at this
// scale, revisit if the player count grows large.
func Compute(entries []Entry, limit int) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Currency > out[j].Currency
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
