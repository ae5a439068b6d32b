package adapter

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// loose holds an optional field. null or a value of the wrong JSON type
// decodes as absent instead of failing the surrounding document.
type loose[T any] struct {
	value T
	set   bool
}

func (l *loose[T]) UnmarshalJSON(data []byte) error {
	*l = loose[T]{}
	if string(data) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	l.value, l.set = v, true
	return nil
}

func (l loose[T]) or(fallback T) T {
	if !l.set {
		return fallback
	}
	return l.value
}

// looseFloat accepts JSON numbers and numeric strings.
type looseFloat struct {
	value float64
	set   bool
}

func (l *looseFloat) UnmarshalJSON(data []byte) error {
	*l = looseFloat{}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	l.value, l.set = f, true
	return nil
}

func (l looseFloat) or(fallback float64) float64 {
	if !l.set {
		return fallback
	}
	return l.value
}

// looseInt is a looseFloat truncated toward zero.
type looseInt struct {
	f looseFloat
}

func (l *looseInt) UnmarshalJSON(data []byte) error {
	return l.f.UnmarshalJSON(data)
}

func (l looseInt) or(fallback int) int {
	if !l.f.set {
		return fallback
	}
	return int(l.f.value)
}

// looseArray decodes every element on its own and drops the ones that fail.
// A value that is not an array decodes as absent.
type looseArray[T any] struct {
	items []T
	set   bool
}

func (a *looseArray[T]) UnmarshalJSON(data []byte) error {
	*a = looseArray[T]{}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil
	}
	a.set = true
	a.items = make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			continue
		}
		a.items = append(a.items, v)
	}
	return nil
}
