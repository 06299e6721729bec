// Package panel tracks the editor panels the front end has open. Each kind
// of panel has at most one live instance.
package panel

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/willibrandon/dbpanel/internal/logger"
)

// Kind identifies a panel type.
type Kind string

const (
	// KindConnectionForm is the add-connection form. Opening it again
	// focuses the existing instance.
	KindConnectionForm Kind = "connection-form"
	// KindTableData shows rows of one table. Opening it again replaces the
	// existing instance.
	KindTableData Kind = "table-data"
)

var (
	ErrUnknownKind = errors.New("unknown panel kind")
	ErrNoPanel     = errors.New("no open panel of that kind")
)

// ParseKind validates a kind received from a client.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindConnectionForm, KindTableData:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Target is what a panel displays. Empty for the connection form.
type Target struct {
	ConnectionID string `json:"connection_id,omitempty"`
	Schema       string `json:"schema,omitempty"`
	Table        string `json:"table,omitempty"`
}

// Panel is a live panel instance.
type Panel struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Target    Target    `json:"target"`
	OpenedAt  time.Time `json:"opened_at"`
	FocusedAt time.Time `json:"focused_at"`
}

// OpenResult reports what Open did.
type OpenResult struct {
	Panel    Panel  `json:"panel"`
	Reused   bool   `json:"reused"`
	Replaced *Panel `json:"replaced,omitempty"`
}

// Manager holds at most one panel per kind.
type Manager struct {
	mu     sync.Mutex
	panels map[Kind]*Panel
	now    func() time.Time
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		panels: make(map[Kind]*Panel),
		now:    time.Now,
	}
}

// Open shows a panel of the given kind. An existing connection form is
// focused and returned unchanged; an existing table data panel is disposed
// and replaced by a new one for target.
func (m *Manager) Open(kind Kind, target Target) (OpenResult, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return OpenResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	existing := m.panels[kind]

	if existing != nil && kind == KindConnectionForm {
		existing.FocusedAt = now
		return OpenResult{Panel: *existing, Reused: true}, nil
	}

	p := &Panel{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    target,
		OpenedAt:  now,
		FocusedAt: now,
	}
	m.panels[kind] = p

	res := OpenResult{Panel: *p}
	if existing != nil {
		replaced := *existing
		res.Replaced = &replaced
		logger.Debug("panel replaced", "kind", string(kind), "old", existing.ID, "new", p.ID)
	} else {
		logger.Debug("panel opened", "kind", string(kind), "id", p.ID)
	}
	return res, nil
}

// Focus brings the open panel of kind to the front.
func (m *Manager) Focus(kind Kind) (Panel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.panels[kind]
	if p == nil {
		return Panel{}, ErrNoPanel
	}
	p.FocusedAt = m.now()
	return *p, nil
}

// Dispose closes the panel of kind. It reports whether one was open.
func (m *Manager) Dispose(kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.panels[kind]
	if !ok {
		return false
	}
	delete(m.panels, kind)
	logger.Debug("panel disposed", "kind", string(kind), "id", p.ID)
	return true
}

// Active returns the open panel of kind, if any.
func (m *Manager) Active(kind Kind) (Panel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.panels[kind]
	if !ok {
		return Panel{}, false
	}
	return *p, true
}

// List returns open panels ordered by kind.
func (m *Manager) List() []Panel {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Panel, 0, len(m.panels))
	for _, p := range m.panels {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Panel) int {
		switch {
		case a.Kind < b.Kind:
			return -1
		case a.Kind > b.Kind:
			return 1
		}
		return 0
	})
	return out
}
