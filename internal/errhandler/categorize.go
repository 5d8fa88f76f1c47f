package errhandler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/vietddude/faultline/internal/core/domain"
)

// keywords per category, checked in domain.CategoryOrder.
var keywords = map[domain.Category][]string{
	domain.CategoryValidation: {
		"validation", "invalid", "must be", "malformed",
	},
	domain.CategoryNetwork: {
		"network", "timeout", "timed out", "connection", "unreachable",
		"econnrefused", "no such host", "dns", "502", "503", "504", "eof",
	},
	domain.CategoryAuthentication: {
		"authentication", "unauthenticated", "401", "token expired",
		"session expired", "login", "credentials",
	},
	domain.CategoryAuthorization: {
		"authorization", "forbidden", "403", "permission", "not allowed", "access denied",
	},
	domain.CategoryCalculation: {
		"calculation", "computation", "convergence", "did not converge",
		"singular", "overflow", "division by zero", "nan",
	},
	domain.CategorySystem: {
		"panic", "nil pointer", "index out of range", "out of memory", "runtime error",
	},
	domain.CategoryDataIntegrity: {
		"integrity", "checksum", "tamper", "corrupt", "signature mismatch",
	},
	domain.CategoryConfiguration: {
		"configuration", "config", "environment variable", "not configured",
	},
}

// Categorize classifies err by kind, then by type name and message, in
// domain.CategoryOrder priority.
func Categorize(err error) domain.Category {
	if err == nil {
		return domain.CategoryUnknown
	}

	var k domain.Kinded
	if errors.As(err, &k) {
		for _, kind := range k.Kind().Lineage() {
			if c := domain.CategoryOf(kind); c != domain.CategoryUnknown {
				return c
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.CategoryNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.CategoryNetwork
	}

	haystack := strings.ToLower(fmt.Sprintf("%T %s", err, err.Error()))
	for _, c := range domain.CategoryOrder {
		for _, kw := range keywords[c] {
			if containsWord(haystack, kw) {
				return c
			}
		}
	}
	return domain.CategoryUnknown
}

// containsWord matches kw at word boundaries so "nan" does not match "finance".
func containsWord(s, kw string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(kw)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('0' <= b && b <= '9')
}

// KindOf returns the failure kind, deriving one from the category for
// untyped errors.
func KindOf(err error, c domain.Category) domain.Kind {
	var k domain.Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch c {
	case domain.CategoryValidation:
		return domain.KindValidation
	case domain.CategoryNetwork:
		return domain.KindNetwork
	case domain.CategoryAuthentication:
		return domain.KindAuthentication
	case domain.CategoryAuthorization:
		return domain.KindAuthorization
	case domain.CategoryCalculation:
		return domain.KindCalculation
	case domain.CategorySystem:
		return domain.KindSystem
	case domain.CategoryDataIntegrity:
		return domain.KindDataIntegrity
	case domain.CategoryConfiguration:
		return domain.KindConfiguration
	}
	return domain.KindUnknown
}
