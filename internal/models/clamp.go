package models

import (
	"math"
	"strconv"
	"strings"
)

const (
	MinPIN           = 0
	MaxPIN           = 40
	MaxPWMValue      = 255
	DefaultSleepTime = 1000
)

// ClampPIN limits a GPIO pin number to [0, 40].
func ClampPIN(pin int) int {
	return clampInt(pin, MinPIN, MaxPIN)
}

// ClampPWM limits a duty value to [0, 255].
func ClampPWM(v int) int {
	return clampInt(v, 0, MaxPWMValue)
}

// ClampSleep keeps sleep times non-negative.
func ClampSleep(ms int) int {
	if ms < 0 {
		return 0
	}
	return ms
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NormalizeValue clamps the initial literal of a variable to its type.
// Int saturates at the signed 64-bit range, Float at the largest finite
// value with NaN read as zero, Bool collapses to 0 or 1.
func NormalizeValue(t VarType, raw string) string {
	s := strings.TrimSpace(raw)
	switch t {
	case VarInt:
		if s == "" {
			return "0"
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return strconv.FormatInt(i, 10)
		}
		// ParseInt reports the saturated bound on overflow.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return strconv.FormatInt(i, 10)
		}
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			switch {
			case math.IsNaN(f):
				return "0"
			case f >= math.MaxInt64:
				return strconv.FormatInt(math.MaxInt64, 10)
			case f <= math.MinInt64:
				return strconv.FormatInt(math.MinInt64, 10)
			}
			return strconv.FormatInt(int64(f), 10)
		}
		return "0"
	case VarFloat:
		if s == "" {
			return "0.0"
		}
		f, err := strconv.ParseFloat(s, 64)
		if (err != nil && !isRangeErr(err)) || math.IsNaN(f) {
			return "0.0"
		}
		if math.IsInf(f, 0) {
			f = math.Copysign(math.MaxFloat64, f)
		}
		out := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(out, ".eE") {
			out += ".0"
		}
		return out
	case VarBool:
		switch strings.ToLower(s) {
		case "true", "on", "yes":
			return "1"
		case "false", "off", "no", "":
			return "0"
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f != 0 {
			return "1"
		}
		return "0"
	}
	return raw
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}
