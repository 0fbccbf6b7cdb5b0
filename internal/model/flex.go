package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Upstream services disagree on JSON types: identifiers arrive as strings or
// numbers, flags as booleans or 0/1. The helpers below decode a raw value
// leniently and report whether a usable value was present.

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// FlexString decodes a string or a number as a string. Empty strings count
// as absent.
func FlexString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// FlexFloat decodes a finite number, or a string holding one.
func FlexFloat(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FlexBool decodes true/false, 1/0, or their string forms.
func FlexBool(raw json.RawMessage) (bool, bool) {
	if isNull(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	if f, ok := FlexFloat(raw); ok {
		return f != 0, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	return false, false
}

// Fields is a decoded JSON object whose keys may be spelled several ways.
type Fields map[string]json.RawMessage

// Pick returns the first present, non-null value among keys.
func (f Fields) Pick(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := f[k]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}

// String is FlexString over the first matching key.
func (f Fields) String(keys ...string) (string, bool) { return FlexString(f.Pick(keys...)) }

// Float is FlexFloat over the first matching key.
func (f Fields) Float(keys ...string) (float64, bool) { return FlexFloat(f.Pick(keys...)) }

// Bool is FlexBool over the first matching key.
func (f Fields) Bool(keys ...string) (bool, bool) { return FlexBool(f.Pick(keys...)) }
