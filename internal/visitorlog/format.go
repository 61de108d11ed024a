package visitorlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/rudderlabs/visitor-log/internal/model"
)

const (
	// Separator joins rendered entries.
	Separator = " ➛ "

	// MissingTimestamp replaces the date and time of an entry without a timestamp.
	MissingTimestamp = "present place:present time"

	emptyTimestamp = "present time : present place"
)

// FormatEntry renders e as "M.D.YY H:MM:SS city, country" in loc.
func FormatEntry(e model.Entry, loc *time.Location) string {
	e = e.WithDefaults()
	return FormatTimestamp(e, loc) + " " + e.City + ", " + e.Country
}

// FormatTimestamp renders the timestamp of e as "M.D.YY H:MM:SS" in loc. Only
// minutes and seconds are zero padded.
func FormatTimestamp(e model.Entry, loc *time.Location) string {
	if !e.HasTimestamp() {
		return MissingTimestamp
	}
	t := e.Timestamp.In(loc)
	return fmt.Sprintf("%d.%d.%02d %d:%02d:%02d",
		int(t.Month()), t.Day(), t.Year()%100,
		t.Hour(), t.Minute(), t.Second(),
	)
}

// RenderEntries formats entries in order, one string per entry. An empty set
// renders as a single placeholder entry.
func RenderEntries(entries []model.Entry, loc *time.Location) []string {
	if len(entries) == 0 {
		return []string{placeholder(emptyTimestamp)}
	}
	return lo.Map(entries, func(e model.Entry, _ int) string {
		return FormatEntry(e, loc)
	})
}

// Render joins the output of RenderEntries with Separator.
func Render(entries []model.Entry, loc *time.Location) string {
	return strings.Join(RenderEntries(entries, loc), Separator)
}

// Placeholder is rendered when the store could not be read.
func Placeholder() string {
	return placeholder(MissingTimestamp)
}

func placeholder(dateTime string) string {
	return dateTime + " " + model.UnknownCity + ", " + model.UnknownCountry
}
