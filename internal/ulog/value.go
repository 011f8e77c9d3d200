package ulog

import (
	"math"
	"strconv"
)

// ValueKind discriminates the scalar types a parameter or info value may hold.
type ValueKind uint8

const (
	KindInt ValueKind = iota
	KindFloat
	KindText
)

// Value is a tagged scalar. Parameters and info entries in a ULog file are
// either integers, floats or character strings; consumers that assume one of
// these must check instead of coercing blindly.
type Value struct {
	Kind   ValueKind
	IntV   int64
	FloatV float64
	TextV  string
}

func IntValue(v int64) Value     { return Value{Kind: KindInt, IntV: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, FloatV: v} }
func TextValue(v string) Value   { return Value{Kind: KindText, TextV: v} }

// Int returns the value as an integer. Float values convert only when they
// carry no fractional part.
func (v Value) Int() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.IntV, true
	case KindFloat:
		if math.IsNaN(v.FloatV) || math.IsInf(v.FloatV, 0) {
			return 0, false
		}
		if v.FloatV == math.Trunc(v.FloatV) && math.Abs(v.FloatV) < 1<<53 {
			return int64(v.FloatV), true
		}
	}
	return 0, false
}

// Float returns the value as a float when it is numeric.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.IntV), true
	case KindFloat:
		return v.FloatV, true
	}
	return 0, false
}

// String renders the value the way it would appear in a parameter listing.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.IntV, 10)
	case KindFloat:
		return strconv.FormatFloat(v.FloatV, 'g', -1, 64)
	default:
		return v.TextV
	}
}
