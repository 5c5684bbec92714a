package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// asRange recognizes an explicit range: Range or a map with start and end
// keys. A two-element list is only read as a range by between itself.
func asRange(value any) (Range, bool) {
	switch v := value.(type) {
	case Range:
		return v, true
	case *Range:
		if v != nil {
			return *v, true
		}
	case map[string]any:
		start, hasStart := v["start"]
		end, hasEnd := v["end"]
		if hasStart || hasEnd {
			return Range{Start: start, End: end}, true
		}
	}
	return Range{}, false
}

func asBounds(value any) (Range, bool) {
	if r, ok := asRange(value); ok {
		return r, true
	}
	if list, ok := asList(value); ok && len(list) == 2 {
		return Range{Start: list[0], End: list[1]}, true
	}
	return Range{}, false
}

func asList(value any) ([]any, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if _, isBytes := value.([]byte); isBytes {
		return nil, false
	}
	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}

func parseText(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case nil:
		return "", ErrUnparseable
	}
	if n, err := parseNumber(value); err == nil {
		return fmt.Sprint(n), nil
	}
	return "", ErrUnparseable
}

// parseNumber yields int64 for integral values and float64 otherwise.
func parseNumber(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return float64(v), nil
		}
		return int64(v), nil
	case uint:
		return parseNumber(uint64(v))
	case float32:
		return normalizeFloat(float64(v)), nil
	case float64:
		return normalizeFloat(v), nil
	case json.Number:
		return parseNumber(v.String())
	case string:
		str := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(str, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(str, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return normalizeFloat(f), nil
		}
	}
	return nil, ErrUnparseable
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

func parseInteger(value any) (int64, error) {
	n, err := parseNumber(value)
	if err != nil {
		return 0, err
	}
	i, ok := n.(int64)
	if !ok {
		return 0, ErrUnparseable
	}
	return i, nil
}

func parseDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, ErrUnparseable
}

func parseBoolean(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
	}
	if n, err := parseInteger(value); err == nil && (n == 0 || n == 1) {
		return n == 1, nil
	}
	return false, ErrUnparseable
}

// parseIDs accepts a single identifier or a list of them. Lists are narrowed
// to []int64 or []string when homogeneous so drivers can bind them as arrays.
func parseIDs(value any) ([]any, error) {
	list, ok := asList(value)
	if !ok {
		if value == nil {
			return nil, ErrUnparseable
		}
		list = []any{value}
	}
	if len(list) == 0 {
		return nil, ErrUnparseable
	}
	ids := make([]any, 0, len(list))
	for _, item := range list {
		if item == nil {
			return nil, ErrUnparseable
		}
		if n, err := parseNumber(item); err == nil {
			if _, isString := item.(string); !isString {
				item = n
			}
		}
		ids = append(ids, item)
	}
	return ids, nil
}

// Homogeneous narrows ids to []int64 or []string when every item has that
// type, and returns them unchanged otherwise.
func Homogeneous(ids []any) any {
	ints := make([]int64, 0, len(ids))
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		switch v := id.(type) {
		case int64:
			ints = append(ints, v)
		case string:
			strs = append(strs, v)
		default:
			return ids
		}
	}
	switch {
	case len(ints) == len(ids):
		return ints
	case len(strs) == len(ids):
		return strs
	}
	return ids
}

// escapeLike quotes LIKE wildcards so the value matches literally.
func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
