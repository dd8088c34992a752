package diagram

import (
	"fmt"

	"github.com/Kotoad/APP-PyQt-sub000/internal/catalog"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

// VariableFields are the editable fields of a variable row.
type VariableFields struct {
	Name  string         `json:"name"`
	Type  models.VarType `json:"type"`
	Value string         `json:"value"`
}

// DeviceFields are the editable fields of a device row.
type DeviceFields struct {
	Name string            `json:"name"`
	Type models.DeviceType `json:"type"`
	PIN  int               `json:"PIN"`
}

func (f VariableFields) normalize() (VariableFields, error) {
	if f.Type == "" {
		f.Type = models.VarInt
	}
	if !f.Type.Valid() {
		return f, fmt.Errorf("%w: variable type %q", ErrInvalidParam, f.Type)
	}
	f.Value = models.NormalizeValue(f.Type, f.Value)
	return f, nil
}

func (f DeviceFields) normalize() (DeviceFields, error) {
	if f.Type == "" {
		f.Type = models.DeviceOutput
	}
	if !f.Type.Valid() {
		return f, fmt.Errorf("%w: device type %q", ErrInvalidParam, f.Type)
	}
	f.PIN = models.ClampPIN(f.PIN)
	return f, nil
}

func (e *Editor) scope(scopeID string) (*models.Scope, *nameIndex, error) {
	c, err := e.canvas(scopeID)
	if err != nil {
		return nil, nil, err
	}
	idx, ok := e.names[c.ID]
	if !ok {
		idx = indexScope(c.Scope)
		e.names[c.ID] = idx
	}
	return c.Scope, idx, nil
}

// AddVariable creates a variable in the scope of canvas scopeID.
func (e *Editor) AddVariable(scopeID string, f VariableFields) (string, error) {
	s, idx, err := e.scope(scopeID)
	if err != nil {
		return "", err
	}
	f, err = f.normalize()
	if err != nil {
		return "", err
	}
	id, err := e.ids.Allocate(catalog.KindVariable)
	if err != nil {
		return "", err
	}
	s.Variables.Set(id, &models.Variable{ID: id, Name: f.Name, Type: f.Type, Value: f.Value})
	idx.set(id, f.Name)
	return id, nil
}

// AddDevice creates a device in the scope of canvas scopeID.
func (e *Editor) AddDevice(scopeID string, f DeviceFields) (string, error) {
	s, idx, err := e.scope(scopeID)
	if err != nil {
		return "", err
	}
	f, err = f.normalize()
	if err != nil {
		return "", err
	}
	id, err := e.ids.Allocate(catalog.KindDevice)
	if err != nil {
		return "", err
	}
	s.Devices.Set(id, &models.Device{ID: id, Name: f.Name, Type: f.Type, PIN: f.PIN})
	idx.set(id, f.Name)
	return id, nil
}

// UpdateVariable replaces every field of a variable.
func (e *Editor) UpdateVariable(scopeID, id string, f VariableFields) error {
	s, idx, err := e.scope(scopeID)
	if err != nil {
		return err
	}
	v, ok := s.Variables.Get(id)
	if !ok {
		return fmt.Errorf("%w: variable %s", ErrNotFound, id)
	}
	f, err = f.normalize()
	if err != nil {
		return err
	}
	v.Name, v.Type, v.Value = f.Name, f.Type, f.Value
	idx.set(id, f.Name)
	return nil
}

// UpdateDevice replaces every field of a device.
func (e *Editor) UpdateDevice(scopeID, id string, f DeviceFields) error {
	s, idx, err := e.scope(scopeID)
	if err != nil {
		return err
	}
	d, ok := s.Devices.Get(id)
	if !ok {
		return fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	f, err = f.normalize()
	if err != nil {
		return err
	}
	d.Name, d.Type, d.PIN = f.Name, f.Type, f.PIN
	idx.set(id, f.Name)
	return nil
}

// RenameBinding renames a variable or device. Siblings sharing the new
// name become duplicates; the rename itself always succeeds.
func (e *Editor) RenameBinding(scopeID, id, newName string) error {
	s, idx, err := e.scope(scopeID)
	if err != nil {
		return err
	}
	if v, ok := s.Variables.Get(id); ok {
		v.Name = newName
	} else if d, ok := s.Devices.Get(id); ok {
		d.Name = newName
	} else {
		return fmt.Errorf("%w: binding %s", ErrNotFound, id)
	}
	idx.set(id, newName)
	return nil
}

// DeleteBinding removes a variable or device.
func (e *Editor) DeleteBinding(scopeID, id string) error {
	s, idx, err := e.scope(scopeID)
	if err != nil {
		return err
	}
	switch {
	case s.Variables.Has(id):
		s.Variables.Delete(id)
	case s.Devices.Has(id):
		s.Devices.Delete(id)
	default:
		return fmt.Errorf("%w: binding %s", ErrNotFound, id)
	}
	idx.remove(id)
	e.ids.Unregister(id)
	return nil
}

// IsDuplicate reports whether the binding shares its name with a sibling.
func (e *Editor) IsDuplicate(scopeID, id string) bool {
	_, idx, err := e.scope(scopeID)
	if err != nil {
		return false
	}
	return idx.duplicate(id)
}

// Duplicates lists the names bound more than once in a scope.
func (e *Editor) Duplicates(scopeID string) []string {
	_, idx, err := e.scope(scopeID)
	if err != nil {
		return nil
	}
	return idx.duplicateNames()
}

// CheckNames fails with ErrNameCollision if any scope has a duplicate name.
func (e *Editor) CheckNames() error {
	return CheckNames(e.project)
}

// CheckNames fails with ErrNameCollision if any scope of p has a duplicate name.
func CheckNames(p *models.Project) error {
	for _, c := range p.Canvases() {
		if dups := DuplicateNames(c.Scope); len(dups) > 0 {
			return fmt.Errorf("%w: %v in %s", ErrNameCollision, dups, c.ID)
		}
	}
	return nil
}
