package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/vietddude/faultline/internal/core/domain"
)

// maxExactInt is the largest magnitude a float64 holds without rounding.
const maxExactInt = 1 << 53

// decodeJSON unmarshals data keeping integer detail values exact. Numbers
// that a float64 represents exactly decode as float64, larger integers as
// int64, and integers beyond int64 keep their literal as json.Number.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("invalid character after top-level value")
	}

	switch t := v.(type) {
	case *[]domain.AuditEntry:
		for i := range *t {
			(*t)[i].Details = restoreDetails((*t)[i].Details)
		}
	case *map[string]any:
		*t = restoreDetails(*t)
	case *any:
		*t = restoreNumbers(*t)
	}
	return nil
}

func restoreDetails(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return restoreNumbers(m).(map[string]any)
}

func restoreNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = restoreNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = restoreNumbers(val)
		}
		return out
	case json.Number:
		return fromNumber(t)
	}
	return v
}

func fromNumber(n json.Number) any {
	if !strings.ContainsAny(n.String(), ".eE") {
		i, err := n.Int64()
		if err != nil {
			return n
		}
		if i > maxExactInt || i < -maxExactInt {
			return i
		}
	}
	f, err := n.Float64()
	if err != nil {
		return n
	}
	return f
}
