package model

import (
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/rudderlabs/visitor-log/jsonrs"
)

// Sentinel values substituted when real data is unavailable.
const (
	UnknownIP      = "unknown"
	UnknownCity    = "nowhere"
	UnknownCountry = "zz"
)

// TimestampLayout is the wire format of an entry timestamp: ISO-8601 in UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var ErrMalformedResponse = errors.New("malformed response body")

// Entry is one recorded visit.
type Entry struct {
	IP        string
	City      string
	Country   string
	Timestamp time.Time // zero when the timestamp is missing or could not be parsed
}

// NewEntry builds a visit from lookup results. City and country are lowercased and
// every missing field gets its sentinel.
func NewEntry(ip, city, country string, at time.Time) Entry {
	e := Entry{
		IP:        ip,
		City:      strings.ToLower(city),
		Country:   strings.ToLower(country),
		Timestamp: at,
	}
	if e.IP == "" {
		e.IP = UnknownIP
	}
	return e.WithDefaults()
}

// Fallback returns the entry recorded when the visitor could not be located.
func Fallback(at time.Time) Entry {
	return Entry{
		IP:        UnknownIP,
		City:      UnknownCity,
		Country:   UnknownCountry,
		Timestamp: at,
	}
}

// WithDefaults returns a copy with sentinels in place of a missing city or country.
func (e Entry) WithDefaults() Entry {
	if e.City == "" {
		e.City = UnknownCity
	}
	if e.Country == "" {
		e.Country = UnknownCountry
	}
	return e
}

func (e Entry) HasTimestamp() bool {
	return !e.Timestamp.IsZero()
}

type entryJSON struct {
	IP        string `json:"ip"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Timestamp string `json:"timestamp"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	var ts string
	if e.HasTimestamp() {
		ts = e.Timestamp.UTC().Format(TimestampLayout)
	}
	return jsonrs.Marshal(entryJSON{
		IP:        e.IP,
		City:      e.City,
		Country:   e.Country,
		Timestamp: ts,
	})
}

// UnmarshalJSON is lenient with timestamps: rows in the store are free-form
// spreadsheet cells, so anything dateparse cannot make sense of is dropped.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := jsonrs.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entry{
		IP:        raw.IP,
		City:      raw.City,
		Country:   raw.Country,
		Timestamp: ParseTimestamp(raw.Timestamp),
	}
	return nil
}

// ParseTimestamp returns the zero time for empty or unparsable input.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
