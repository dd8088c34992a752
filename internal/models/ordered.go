package models

// OrderedMap is a string-keyed map that remembers insertion order.
// Lookups are O(1); iteration follows the order keys were first set.
type OrderedMap[V any] struct {
	keys  []string
	items map[string]V
}

// NewOrderedMap creates an empty OrderedMap.
func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{items: make(map[string]V)}
}

// Get returns the value stored under key.
func (m *OrderedMap[V]) Get(key string) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Has reports whether key is present.
func (m *OrderedMap[V]) Has(key string) bool {
	_, ok := m.items[key]
	return ok
}

// Set stores value under key. Existing keys keep their position.
func (m *OrderedMap[V]) Set(key string, value V) {
	if _, ok := m.items[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.items[key] = value
}

// Delete removes key. Missing keys are ignored.
func (m *OrderedMap[V]) Delete(key string) {
	if _, ok := m.items[key]; !ok {
		return
	}
	delete(m.items, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (m *OrderedMap[V]) Len() int {
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *OrderedMap[V]) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Values returns the values in insertion order.
func (m *OrderedMap[V]) Values() []V {
	out := make([]V, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.items[k])
	}
	return out
}

// Clone copies the map, applying cp to every value. A nil cp copies values as-is.
func (m *OrderedMap[V]) Clone(cp func(V) V) *OrderedMap[V] {
	out := &OrderedMap[V]{
		keys:  make([]string, len(m.keys)),
		items: make(map[string]V, len(m.items)),
	}
	copy(out.keys, m.keys)
	for k, v := range m.items {
		if cp != nil {
			v = cp(v)
		}
		out.items[k] = v
	}
	return out
}
