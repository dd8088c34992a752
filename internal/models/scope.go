package models

// VarType is the declared type of a variable.
type VarType string

const (
	VarInt    VarType = "Int"
	VarFloat  VarType = "Float"
	VarString VarType = "String"
	VarBool   VarType = "Bool"
)

// Valid reports whether t is a known variable type.
func (t VarType) Valid() bool {
	switch t {
	case VarInt, VarFloat, VarString, VarBool:
		return true
	}
	return false
}

// DeviceType is the electrical role of a device.
type DeviceType string

const (
	DeviceOutput DeviceType = "Output"
	DeviceInput  DeviceType = "Input"
	DeviceButton DeviceType = "Button"
	DevicePWM    DeviceType = "PWM"
)

// Valid reports whether t is a known device type.
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceOutput, DeviceInput, DeviceButton, DevicePWM:
		return true
	}
	return false
}

// IsInput reports whether the pin is configured as an input.
func (t DeviceType) IsInput() bool {
	return t == DeviceInput || t == DeviceButton
}

// Variable is a named value binding.
type Variable struct {
	ID    string  `json:"id" msgpack:"id"`
	Name  string  `json:"name" msgpack:"name"`
	Type  VarType `json:"type" msgpack:"type"`
	Value string  `json:"value" msgpack:"value"`
}

// Device is a named GPIO binding.
type Device struct {
	ID   string     `json:"id" msgpack:"id"`
	Name string     `json:"name" msgpack:"name"`
	Type DeviceType `json:"type" msgpack:"type"`
	PIN  int        `json:"PIN" msgpack:"PIN"`
}

// Scope holds the variables and devices visible to one canvas.
type Scope struct {
	Variables *OrderedMap[*Variable]
	Devices   *OrderedMap[*Device]
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		Variables: NewOrderedMap[*Variable](),
		Devices:   NewOrderedMap[*Device](),
	}
}

// Clone returns a deep copy of the scope.
func (s *Scope) Clone() *Scope {
	return &Scope{
		Variables: s.Variables.Clone(func(v *Variable) *Variable { c := *v; return &c }),
		Devices:   s.Devices.Clone(func(d *Device) *Device { c := *d; return &c }),
	}
}

// VariableByName returns the first variable called name.
func (s *Scope) VariableByName(name string) (*Variable, bool) {
	for _, v := range s.Variables.Values() {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// DeviceByName returns the first device called name.
func (s *Scope) DeviceByName(name string) (*Device, bool) {
	for _, d := range s.Devices.Values() {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}
