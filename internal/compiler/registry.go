package compiler

import (
	"fmt"
	"strings"
)

// Registry holds the available dialects and picks one per target model.
type Registry struct {
	dialects []Dialect
}

// Global registry instance
var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		dialects: []Dialect{
			NewMicroPython(),
			NewRPiGPIO(),
		},
	}
}

// GetGlobalRegistry returns the singleton registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register adds a dialect. Later registrations are consulted last.
func (r *Registry) Register(d Dialect) {
	r.dialects = append(r.dialects, d)
}

// FindDialect returns the first dialect that supports the target model index.
func (r *Registry) FindDialect(targetIndex int) (Dialect, error) {
	for _, d := range r.dialects {
		if d.Supports(targetIndex) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no dialect for target model %d", ErrCompile, targetIndex)
}

// GetDialectByName returns a dialect by its name.
func (r *Registry) GetDialectByName(name string) (Dialect, error) {
	name = strings.ToLower(name)
	for _, d := range r.dialects {
		if strings.ToLower(d.Name()) == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("dialect not found: %s", name)
}
