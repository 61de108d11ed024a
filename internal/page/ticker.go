package page

import "sync"

// CommitKey is the key that moves the input text onto the ticker.
const CommitKey = "Enter"

// Ticker is the scrolling line of text and the input that feeds it.
type Ticker struct {
	mu      sync.Mutex
	display *Element
	input   *Element
}

func NewTicker(display, input *Element) *Ticker {
	return &Ticker{display: display, input: input}
}

func (t *Ticker) Display() *Element { return t.display }
func (t *Ticker) Input() *Element   { return t.input }

// KeyPress handles a key pressed in the input. On CommitKey the input text
// replaces the ticker text and the input is cleared. Every other key is
// ignored. It reports whether the ticker changed.
func (t *Ticker) KeyPress(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.keyPress(key)
}

// Type sets the input to value and then presses key, as one step.
func (t *Ticker) Type(value, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input.SetText(value)
	return t.keyPress(key)
}

func (t *Ticker) keyPress(key string) bool {
	if key != CommitKey {
		return false
	}
	t.display.SetText(t.input.Text())
	t.input.SetText("")
	return true
}
