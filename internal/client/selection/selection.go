// Package selection tracks at most one selected record of a displayed list.
package selection

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dmitrijs2005/preshare/internal/client/models"
)

// Mode decides what Toggle does when a different record is already selected.
type Mode int

const (
	// ModeReplace is plain single-select: clicking another record moves the
	// selection to it.
	ModeReplace Mode = iota
	// ModeStrictToggle clears the selection on any click while something is
	// selected; a second click is needed to select another record.
	ModeStrictToggle
)

func (m Mode) String() string {
	if m == ModeStrictToggle {
		return "strict-toggle"
	}
	return "replace"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return ModeReplace, nil
	case "strict-toggle", "strict", "toggle":
		return ModeStrictToggle, nil
	default:
		return ModeReplace, fmt.Errorf("unknown selection mode %q", s)
	}
}

// Source resolves ids of the displayed list.
type Source interface {
	Lookup(id int64) (models.DataAccess, bool)
}

// List is a Source over a fixed slice, typically the items of a view.
type List []models.DataAccess

func (l List) Lookup(id int64) (models.DataAccess, bool) {
	i := slices.IndexFunc(l, func(d models.DataAccess) bool { return d.ID == id })
	if i < 0 {
		return models.DataAccess{}, false
	}
	return l[i].Clone(), true
}

type Controller struct {
	mode Mode

	mu        sync.Mutex
	available Source
	selected  int64
	has       bool
}

func New(available Source, mode Mode) *Controller {
	return &Controller{available: available, mode: mode}
}

func (c *Controller) Mode() Mode { return c.mode }

// Toggle applies a click on id and returns the selection after it.
//
// Clicking the selected record clears it. Clicking an id that is not in the
// displayed list clears the selection. Clicking another record selects it in
// ModeReplace and only clears the current selection in ModeStrictToggle.
func (c *Controller) Toggle(id int64) (models.DataAccess, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.has && (c.selected == id || c.mode == ModeStrictToggle) {
		c.has = false
		return models.DataAccess{}, false
	}

	d, found := c.lookup(id)
	if !found {
		c.has = false
		return models.DataAccess{}, false
	}

	c.selected, c.has = id, true
	return d, true
}

// IsSelectable is true when nothing is selected or id is the selection.
func (c *Controller) IsSelectable(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.has || c.selected == id
}

// Selected resolves the selection against the displayed list.
func (c *Controller) Selected() (models.DataAccess, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has {
		return models.DataAccess{}, false
	}
	return c.lookup(c.selected)
}

func (c *Controller) SelectedID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected, c.has
}

func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.has = false
}

// ClearIf clears the selection when it points at id and reports whether it
// did.
func (c *Controller) ClearIf(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.has && c.selected == id {
		c.has = false
		return true
	}
	return false
}

// SetAvailable swaps the displayed list. A selection that is not part of the
// new list is cleared.
func (c *Controller) SetAvailable(src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = src
	if c.has {
		if _, ok := c.lookup(c.selected); !ok {
			c.has = false
		}
	}
}

func (c *Controller) lookup(id int64) (models.DataAccess, bool) {
	if c.available == nil {
		return models.DataAccess{}, false
	}
	return c.available.Lookup(id)
}
