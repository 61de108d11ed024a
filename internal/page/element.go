// Package page holds the state of the single visitor page and serves it over HTTP.
package page

import (
	"slices"
	"strings"
	"sync"

	"github.com/rudderlabs/visitor-log/internal/visitorlog"
)

// Element ids as they appear in the rendered page.
const (
	TickerID   = "ticker"
	InputID    = "new-text"
	VisitorsID = "visitorEntries"
)

// Element is a piece of page text addressed by id. It is safe for concurrent use.
type Element struct {
	id string

	mu   sync.RWMutex
	text string
}

func NewElement(id, text string) *Element {
	return &Element{id: id, text: text}
}

func (e *Element) ID() string {
	return e.id
}

func (e *Element) Text() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.text
}

func (e *Element) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

// VisitorList is the visitor entries element. Entries are kept one by one so
// that the page never has to split rendered text.
type VisitorList struct {
	id string

	mu      sync.RWMutex
	entries []string
}

func NewVisitorList(id string) *VisitorList {
	return &VisitorList{id: id}
}

func (v *VisitorList) ID() string {
	return v.id
}

func (v *VisitorList) Entries() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.entries)
}

func (v *VisitorList) SetEntries(entries []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = slices.Clone(entries)
}

// Text is the list as shown on the page, entries joined by the separator.
func (v *VisitorList) Text() string {
	return strings.Join(v.Entries(), visitorlog.Separator)
}

// Page is the set of elements making up the page.
type Page struct {
	Ticker   *Ticker
	Visitors *VisitorList
}

func New() *Page {
	return &Page{
		Ticker:   NewTicker(NewElement(TickerID, ""), NewElement(InputID, "")),
		Visitors: NewVisitorList(VisitorsID),
	}
}
