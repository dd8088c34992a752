package diagram

import (
	"sort"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

// nameIndex is the per-scope multimap name -> ids used to flag duplicates.
// Variables and devices share one namespace. Empty names are ignored.
type nameIndex struct {
	ids   map[string]map[string]struct{}
	names map[string]string
}

func newNameIndex() *nameIndex {
	return &nameIndex{
		ids:   make(map[string]map[string]struct{}),
		names: make(map[string]string),
	}
}

func indexScope(s *models.Scope) *nameIndex {
	n := newNameIndex()
	for _, v := range s.Variables.Values() {
		n.set(v.ID, v.Name)
	}
	for _, d := range s.Devices.Values() {
		n.set(d.ID, d.Name)
	}
	return n
}

func (n *nameIndex) set(id, name string) {
	n.remove(id)
	n.names[id] = name
	if name == "" {
		return
	}
	set, ok := n.ids[name]
	if !ok {
		set = make(map[string]struct{})
		n.ids[name] = set
	}
	set[id] = struct{}{}
}

func (n *nameIndex) remove(id string) {
	name, ok := n.names[id]
	if !ok {
		return
	}
	delete(n.names, id)
	if set, ok := n.ids[name]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(n.ids, name)
		}
	}
}

func (n *nameIndex) duplicate(id string) bool {
	name, ok := n.names[id]
	if !ok || name == "" {
		return false
	}
	return len(n.ids[name]) >= 2
}

func (n *nameIndex) duplicateNames() []string {
	var out []string
	for name, set := range n.ids {
		if len(set) >= 2 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// DuplicateNames lists the names bound more than once in s.
func DuplicateNames(s *models.Scope) []string {
	return indexScope(s).duplicateNames()
}
