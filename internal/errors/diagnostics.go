package errors

import "sync"

// Diagnostic is a recovered condition recorded during a pass.
type Diagnostic struct {
	Code      ErrorCode `json:"code"`
	Module    string    `json:"module"`
	Specifier string    `json:"specifier,omitempty"`
	Name      string    `json:"name,omitempty"`
	Message   string    `json:"message"`
}

// Diagnostics collects recovered conditions in the order they were found.
// A nil *Diagnostics discards everything.
type Diagnostics struct {
	mu    sync.Mutex
	items []Diagnostic
	seen  map[Diagnostic]struct{}
}

// NewDiagnostics creates an empty collector.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{seen: make(map[Diagnostic]struct{})}
}

// Add records d once; duplicates are ignored.
func (d *Diagnostics) Add(diag Diagnostic) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[Diagnostic]struct{})
	}
	if _, ok := d.seen[diag]; ok {
		return
	}
	d.seen[diag] = struct{}{}
	d.items = append(d.items, diag)
}

// Items returns a copy of the recorded diagnostics.
func (d *Diagnostics) Items() []Diagnostic {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Diagnostic, len(d.items))
	copy(out, d.items)
	return out
}

// Count returns how many diagnostics carry code.
func (d *Diagnostics) Count(code ErrorCode) int {
	n := 0
	for _, item := range d.Items() {
		if item.Code == code {
			n++
		}
	}
	return n
}
