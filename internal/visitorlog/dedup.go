package visitorlog

import (
	"slices"
	"time"

	"github.com/rudderlabs/visitor-log/internal/model"
)

// DefaultWindow is the span within which repeat visits from one address collapse into one.
const DefaultWindow = 6 * time.Hour

// Dedup sorts entries newest first and drops every entry that is within window
// of the most recently kept entry of the same ip. A repeat visit is kept only
// when it is strictly more than window older than that kept entry, which then
// becomes the reference for the next, older, visits of the ip.
//
// Entries without a timestamp sort last and are kept only when no other entry
// of their ip was kept. The input is left untouched.
func Dedup(entries []model.Entry, window time.Duration) []model.Entry {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b model.Entry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	lastKept := make(map[string]time.Time, len(sorted))
	kept := make([]model.Entry, 0, len(sorted))
	for _, entry := range sorted {
		last, seen := lastKept[entry.IP]
		if seen && (!entry.HasTimestamp() || last.Sub(entry.Timestamp) <= window) {
			continue
		}
		lastKept[entry.IP] = entry.Timestamp
		kept = append(kept, entry)
	}
	return kept
}
