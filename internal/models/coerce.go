package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownParam is returned when a parameter key is not legal for a block type.
var ErrUnknownParam = errors.New("unknown parameter")

// Field is one entry of an ordered Record.
type Field struct {
	Key   string
	Value any
}

// Record is an object whose keys keep their declared order when serialized.
type Record []Field

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// asObject accepts either a Record or a decoded JSON object.
func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case Record:
		out := make(map[string]any, len(t))
		for _, f := range t {
			out[f.Key] = f.Value
		}
		return out, true
	case map[string]any:
		return t, true
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

// toInt converts JSON-ish numbers and numeric strings. Fractions are truncated.
func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int8:
		return int(t), true
	case int16:
		return int(t), true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint8:
		return int(t), true
	case uint16:
		return int(t), true
	case uint32:
		return int(t), true
	case uint64:
		if t > math.MaxInt64 {
			return math.MaxInt, true
		}
		return int(t), true
	case float32:
		return toInt(float64(t))
	case float64:
		if math.IsNaN(t) {
			return 0, false
		}
		if t > math.MaxInt64 {
			return math.MaxInt, true
		}
		if t < math.MinInt64 {
			return math.MinInt, true
		}
		return int(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), true
		}
		if f, err := t.Float64(); err == nil {
			return toInt(f)
		}
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return int(i), true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return toInt(f)
		}
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toStrings(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out, true
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = toString(e)
		}
		return out, true
	}
	return nil, false
}

// toOnOff accepts booleans, "on"/"off", and numbers.
func toOnOff(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "on", "true", "high", "1":
			return true
		}
		return false
	}
	if i, ok := toInt(v); ok {
		return i != 0
	}
	return false
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
