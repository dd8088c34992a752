// Package catalog allocates and tracks the ids of every persistent entity:
// blocks, paths, variables, devices, functions and canvases.
package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Entity kinds used by the editor. Block ids use the block type as kind.
const (
	KindVariable = "variable"
	KindDevice   = "device"
	KindFunction = "function"
	KindPath     = "path"
	KindCanvas   = "canvas"
)

// MaxAttempts bounds how many random suffixes NewID tries before giving up.
const MaxAttempts = 1000

var (
	// ErrDuplicateID is returned when registering an id that is already taken.
	ErrDuplicateID = errors.New("duplicate_id")
	// ErrExhausted is returned when no free id could be found.
	ErrExhausted = errors.New("id space exhausted")
)

// Catalog is the central id registry. It is not safe for concurrent use;
// the owner of the project serializes access.
type Catalog struct {
	kinds  map[string]string   // id -> kind
	byKind map[string][]string // kind -> ids in registration order
	rng    *rand.Rand
}

// New creates an empty catalog seeded from the clock.
func New() *Catalog {
	seed := uint64(time.Now().UnixNano())
	return NewWithSource(rand.NewPCG(seed, seed>>7|1))
}

// NewWithSource creates an empty catalog drawing suffixes from src.
func NewWithSource(src rand.Source) *Catalog {
	return &Catalog{
		kinds:  make(map[string]string),
		byKind: make(map[string][]string),
		rng:    rand.New(src),
	}
}

// NewID returns an unused id of the form "{kind}_{5 digits}". An id is
// considered used if it is registered or present in used.
func (c *Catalog) NewID(kind string, used map[string]bool) (string, error) {
	for i := 0; i < MaxAttempts; i++ {
		id := fmt.Sprintf("%s_%05d", kind, 10000+c.rng.IntN(90000))
		if _, taken := c.kinds[id]; taken || used[id] {
			continue
		}
		return id, nil
	}
	return "", fmt.Errorf("%w: kind %s", ErrExhausted, kind)
}

// Allocate picks a new id and registers it in one step.
func (c *Catalog) Allocate(kind string) (string, error) {
	id, err := c.NewID(kind, nil)
	if err != nil {
		return "", err
	}
	return id, c.Register(id, kind)
}

// Register records id under kind.
func (c *Catalog) Register(id, kind string) error {
	if id == "" {
		return fmt.Errorf("register: empty id")
	}
	if _, ok := c.kinds[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	c.kinds[id] = kind
	c.byKind[kind] = append(c.byKind[kind], id)
	return nil
}

// Unregister forgets id. Unknown ids are ignored.
func (c *Catalog) Unregister(id string) {
	kind, ok := c.kinds[id]
	if !ok {
		return
	}
	delete(c.kinds, id)
	ids := c.byKind[kind]
	for i, v := range ids {
		if v == id {
			c.byKind[kind] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(c.byKind[kind]) == 0 {
		delete(c.byKind, kind)
	}
}

// Get returns the kind registered for id.
func (c *Catalog) Get(id string) (string, bool) {
	kind, ok := c.kinds[id]
	return kind, ok
}

// Has reports whether id is registered.
func (c *Catalog) Has(id string) bool {
	_, ok := c.kinds[id]
	return ok
}

// Iter returns the ids registered under kind in registration order.
func (c *Catalog) Iter(kind string) []string {
	ids := c.byKind[kind]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Len returns the number of registered ids.
func (c *Catalog) Len() int {
	return len(c.kinds)
}

// Reset drops every registration.
func (c *Catalog) Reset() {
	c.kinds = make(map[string]string)
	c.byKind = make(map[string][]string)
}
