package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

var reserved = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true, "assert": true,
	"async": true, "await": true, "break": true, "class": true, "continue": true, "def": true,
	"del": true, "elif": true, "else": true, "except": true, "finally": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true, "is": true,
	"lambda": true, "nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
	// names the generated program relies on
	"GPIO": true, "json": true, "time": true, "random": true, "network": true,
	"Pin": true, "PWM": true, "print": true, "range": true, "int": true, "str": true,
	"max": true, "min": true,
}

// Identifier turns a user name into a Python identifier.
func Identifier(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	id := b.String()
	if id == "" {
		return "_"
	}
	if id[0] >= '0' && id[0] <= '9' {
		id = "_" + id
	}
	if strings.HasPrefix(id, "__") {
		id = "v" + id
	}
	if reserved[id] {
		id += "_"
	}
	return id
}

// FunctionIdentifier is the Python name of a function canvas.
func FunctionIdentifier(name string) string {
	return "fn_" + strings.TrimPrefix(Identifier(name), "_")
}

// pyQuote renders s as a double-quoted string literal.
func pyQuote(s string) string {
	return strconv.Quote(s)
}

// literal renders a free-form operand that matched no binding.
// Non-finite numbers have no Python literal and become 0.0.
func literal(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0"
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		switch {
		case math.IsNaN(f), math.IsInf(f, 0):
			return "0.0"
		case strings.ContainsAny(s, "xX_"):
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return s
	}
	switch strings.ToLower(s) {
	case "true":
		return "True"
	case "false":
		return "False"
	}
	return pyQuote(s)
}

// initialValue renders the declared initial value of a variable.
func initialValue(v *models.Variable) string {
	val := models.NormalizeValue(v.Type, v.Value)
	switch v.Type {
	case models.VarString:
		return pyQuote(v.Value)
	case models.VarBool:
		if val == "1" {
			return "True"
		}
		return "False"
	}
	return val
}

// names resolves operands of one canvas to Python expressions.
type names struct {
	vars  map[string]string
	devs  map[string]string
	outer *names
}

func newNames(outer *names) *names {
	return &names{vars: make(map[string]string), devs: make(map[string]string), outer: outer}
}

// bind indexes a scope. Two names that sanitize to the same identifier
// collide even when the raw names differ. reserved maps identifiers the
// scope may not take to what already owns them.
func (n *names) bind(s *models.Scope, where string, reserved map[string]string) error {
	taken := make(map[string]string)
	claim := func(name string) (string, error) {
		id := Identifier(name)
		if owner, ok := reserved[id]; ok {
			return "", fmt.Errorf("%w: %q in %s becomes %s, already used by %s", ErrNameCollision, name, where, id, owner)
		}
		if prev, ok := taken[id]; ok {
			return "", fmt.Errorf("%w: %q and %q in %s both become %s", ErrNameCollision, prev, name, where, id)
		}
		taken[id] = name
		return id, nil
	}
	for _, v := range s.Variables.Values() {
		if strings.TrimSpace(v.Name) == "" {
			continue
		}
		id, err := claim(v.Name)
		if err != nil {
			return err
		}
		n.vars[v.Name] = id
	}
	for _, d := range s.Devices.Values() {
		if strings.TrimSpace(d.Name) == "" {
			continue
		}
		id, err := claim(d.Name)
		if err != nil {
			return err
		}
		n.devs[d.Name] = id
	}
	return nil
}

func (n *names) variable(name string) (string, bool) {
	id, ok := n.vars[name]
	return id, ok
}

// device looks through to the main scope: device constants are global.
func (n *names) device(name string) (string, bool) {
	if id, ok := n.devs[name]; ok {
		return id, true
	}
	if n.outer != nil {
		return n.outer.device(name)
	}
	return "", false
}

// value resolves an arithmetic operand: variable, device constant, or literal.
func (n *names) value(name string) string {
	if id, ok := n.variable(name); ok {
		return id
	}
	if id, ok := n.device(name); ok {
		return id
	}
	return literal(name)
}
