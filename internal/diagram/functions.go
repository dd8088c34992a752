package diagram

import (
	"fmt"
	"strings"

	"github.com/Kotoad/APP-PyQt-sub000/internal/catalog"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

// AddFunctionCanvas creates an empty function canvas and returns its id.
func (e *Editor) AddFunctionCanvas(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if _, ok := e.project.FunctionByName(name); ok {
		return "", fmt.Errorf("%w: function %q", ErrNameCollision, name)
	}
	id, err := e.ids.Allocate(catalog.KindFunction)
	if err != nil {
		return "", err
	}
	c := models.NewCanvas(id, name, models.RefFunction, e.project.Functions.Len()+1)
	e.project.Functions.Set(id, c)
	e.names[id] = newNameIndex()
	return id, nil
}

// RenameFunctionCanvas renames a function and rebinds its call sites.
func (e *Editor) RenameFunctionCanvas(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	c, ok := e.project.Functions.Get(id)
	if !ok {
		return fmt.Errorf("%w: function %s", ErrNotFound, id)
	}
	if other, ok := e.project.FunctionByName(name); ok && other.ID != id {
		return fmt.Errorf("%w: function %q", ErrNameCollision, name)
	}
	old := c.Name
	c.Name = name
	for _, canvas := range e.project.Canvases() {
		for _, b := range canvas.Blocks.Values() {
			if fp, ok := b.Params.(*models.FunctionParams); ok && fp.Name == old {
				fp.Name = name
			}
		}
	}
	return nil
}

// DeleteFunctionCanvas removes a function canvas and everything on it.
// Call sites keep their name and compile to a warning.
func (e *Editor) DeleteFunctionCanvas(id string) error {
	c, ok := e.project.Functions.Get(id)
	if !ok {
		return fmt.Errorf("%w: function %s", ErrNotFound, id)
	}
	for _, b := range c.Blocks.Values() {
		e.ids.Unregister(b.ID)
		delete(e.owner, b.ID)
	}
	for _, p := range c.Paths.Values() {
		e.ids.Unregister(p.ID)
		delete(e.owner, p.ID)
	}
	for _, v := range c.Scope.Variables.Keys() {
		e.ids.Unregister(v)
	}
	for _, d := range c.Scope.Devices.Keys() {
		e.ids.Unregister(d)
	}
	e.project.Functions.Delete(id)
	e.ids.Unregister(id)
	delete(e.names, id)

	for i, fc := range e.project.Functions.Values() {
		fc.Index = i + 1
	}
	return nil
}
