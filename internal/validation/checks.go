package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"
)

// Tolerance for sum-to-one and matrix comparisons.
const Tolerance = 1e-10

// check runs the built-in checks in order: type, then range, then
// structure. Structure and range are skipped when the type is wrong.
func check(value any, rule BoundsRule) (any, []string) {
	switch rule.Kind {
	case KindInteger, KindFloat:
		return checkNumber(value, rule)
	case KindString:
		return checkString(value, rule)
	case KindBoolean:
		b, ok := value.(bool)
		if !ok {
			return value, []string{"must be a boolean"}
		}
		return b, nil
	case KindArray:
		return checkArray(value, rule)
	case KindObject:
		return checkObject(value, rule)
	}
	return value, nil
}

func checkNumber(value any, rule BoundsRule) (any, []string) {
	f, ok := toFloat(value)
	if !ok {
		return value, []string{"must be a number"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return value, []string{"must be a finite number"}
	}
	if rule.Kind == KindInteger && f != math.Trunc(f) {
		return value, []string{"must be an integer"}
	}
	if v := checkRange(f, rule); v != "" {
		return value, []string{v}
	}
	if rule.Kind == KindInteger {
		return int64(f), nil
	}
	return f, nil
}

func checkRange(f float64, rule BoundsRule) string {
	if rule.Min != nil {
		lo := *rule.Min
		if rule.ExcludeMin && f <= lo {
			return fmt.Sprintf("must be greater than %v", lo)
		}
		if f < lo {
			return fmt.Sprintf("must be at least %v", lo)
		}
	}
	if rule.Max != nil {
		hi := *rule.Max
		if rule.ExcludeMax && f >= hi {
			return fmt.Sprintf("must be less than %v", hi)
		}
		if f > hi {
			return fmt.Sprintf("must be at most %v", hi)
		}
	}
	return ""
}

func checkString(value any, rule BoundsRule) (any, []string) {
	s, ok := value.(string)
	if !ok {
		return value, []string{"must be a string"}
	}
	s = strings.TrimSpace(s)
	return s, checkLength(utf8.RuneCountInString(s), rule.Structural)
}

func checkLength(n int, s *Structural) []string {
	if s == nil {
		return nil
	}
	var out []string
	if s.NonEmpty && n == 0 {
		out = append(out, "must not be empty")
	}
	if s.MinLength > 0 && n < s.MinLength {
		out = append(out, fmt.Sprintf("length must be at least %d", s.MinLength))
	}
	if s.MaxLength > 0 && n > s.MaxLength {
		out = append(out, fmt.Sprintf("length must be at most %d", s.MaxLength))
	}
	return out
}

func checkObject(value any, rule BoundsRule) (any, []string) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return value, []string{"must be an object"}
	}
	return value, checkLength(rv.Len(), rule.Structural)
}

func checkArray(value any, rule BoundsRule) (any, []string) {
	items, ok := toSlice(value)
	if !ok {
		return value, []string{"must be an array"}
	}
	s := rule.Structural

	if s.matrix() {
		return checkMatrix(items, s)
	}

	out := checkLength(len(items), s)
	if s != nil && s.Unique && !unique(items) {
		out = append(out, "elements must be unique")
	}

	needNumbers := s.numeric() || rule.Min != nil || rule.Max != nil
	nums, numeric := toFloats(items)
	if !numeric {
		if needNumbers {
			out = append(out, "elements must be finite numbers")
		}
		return value, out
	}

	for i, f := range nums {
		if v := checkRange(f, rule); v != "" {
			out = append(out, fmt.Sprintf("element %d %s", i, v))
			break
		}
	}
	if s != nil {
		out = append(out, checkNumericArray(nums, s)...)
	}
	return nums, out
}

func checkNumericArray(nums []float64, s *Structural) []string {
	var out []string
	if s.NonNegative {
		for _, f := range nums {
			if f < 0 {
				out = append(out, "elements must be non-negative")
				break
			}
		}
	}
	if s.Positive {
		for _, f := range nums {
			if f <= 0 {
				out = append(out, "elements must be positive")
				break
			}
		}
	}
	if s.SumToOne {
		var sum float64
		for _, f := range nums {
			sum += f
		}
		if math.Abs(sum-1) > Tolerance {
			out = append(out, fmt.Sprintf("elements must sum to 1 (got %v)", sum))
		}
	}
	if s.NonZeroVariance && len(nums) > 0 {
		constant := true
		for _, f := range nums[1:] {
			if f != nums[0] {
				constant = false
				break
			}
		}
		if constant {
			out = append(out, "elements must not all be equal")
		}
	}
	return out
}

func unique(items []any) bool {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		var key string
		if f, ok := toFloat(item); ok {
			key = fmt.Sprintf("n:%v", f)
		} else if data, err := json.Marshal(item); err == nil {
			key = "j:" + string(data)
		} else {
			key = fmt.Sprintf("v:%#v", item)
		}
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}

func toSlice(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func toFloats(items []any) ([]float64, bool) {
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
