package audit

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"golang.org/x/text/cases"
)

// Redacted replaces the value of every sensitive key.
const Redacted = "[REDACTED]"

var sensitiveKeys = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"privatekey",
	"accesskey",
	"credential",
	"ssn",
	"creditcard",
	"cardnumber",
	"cvv",
}

var folder = cases.Fold()

// Sensitive reports whether a detail key names a secret.
func Sensitive(key string) bool {
	k := folder.String(key)
	k = strings.NewReplacer("_", "", "-", "", " ", "", ".", "").Replace(k)
	if k == "key" {
		return true
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Redact returns a JSON-normalised deep copy of details with sensitive
// values masked and arrays longer than maxArray truncated. Integers too
// large for a float64 are kept exact.
func Redact(details map[string]any, maxArray int) map[string]any {
	if details == nil {
		return nil
	}
	out, _ := redactValue(details, maxArray).(map[string]any)

	data, err := json.Marshal(out)
	if err != nil {
		return out
	}
	var normalised map[string]any
	if err := decodeJSON(data, &normalised); err != nil {
		return out
	}
	return normalised
}

func redactValue(v any, maxArray int) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if Sensitive(k) {
				out[k] = Redacted
				continue
			}
			out[k] = redactValue(val, maxArray)
		}
		return out
	case []any:
		return truncate(t, maxArray)
	case string, bool, json.Number:
		return t
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case []byte:
		return string(t)
	case error:
		return t.Error()
	case json.Marshaler:
		return viaJSON(t, maxArray)
	case fmt.Stringer:
		return t.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return truncate(items, maxArray)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return redactValue(m, maxArray)
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return redactValue(rv.Elem().Interface(), maxArray)
	}

	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	// Structs go through JSON so their sensitive fields are masked too.
	if rv.Kind() == reflect.Struct {
		return viaJSON(v, maxArray)
	}
	return v
}

func viaJSON(v any, maxArray int) any {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var generic any
	if err := decodeJSON(data, &generic); err != nil {
		return string(data)
	}
	return redactValue(generic, maxArray)
}

func truncate(items []any, maxArray int) []any {
	n := len(items)
	if maxArray > 0 && n > maxArray {
		n = maxArray
	}
	out := make([]any, 0, n+1)
	for _, item := range items[:n] {
		out = append(out, redactValue(item, maxArray))
	}
	if n < len(items) {
		out = append(out, fmt.Sprintf("... (%d more)", len(items)-n))
	}
	return out
}

func finite(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return f
}
