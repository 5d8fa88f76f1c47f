package validation

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotRectangular is returned when matrix rows differ in length
	ErrNotRectangular = errors.New("matrix rows must have equal length")

	// ErrNotSquare is returned when a square matrix is required
	ErrNotSquare = errors.New("matrix must be square")

	// ErrNotSymmetric is returned when a[i][j] and a[j][i] differ beyond tolerance
	ErrNotSymmetric = errors.New("matrix must be symmetric")

	// ErrNotPositiveDefinite is returned when Cholesky decomposition hits a non-positive pivot
	ErrNotPositiveDefinite = errors.New("matrix must be positive-definite")

	// ErrNotCorrelation is returned when a matrix is not a valid correlation matrix
	ErrNotCorrelation = errors.New("matrix must be a correlation matrix")
)

// ToMatrix converts a 2-D array of finite numbers and checks it is
// rectangular.
func ToMatrix(value any) ([][]float64, error) {
	rows, ok := toSlice(value)
	if !ok {
		return nil, errors.New("matrix must be an array of rows")
	}
	m := make([][]float64, len(rows))
	for i, r := range rows {
		items, ok := toSlice(r)
		if !ok {
			return nil, fmt.Errorf("row %d is not an array", i)
		}
		nums, ok := toFloats(items)
		if !ok {
			return nil, fmt.Errorf("row %d must contain finite numbers", i)
		}
		m[i] = nums
	}
	if err := ValidateRectangular(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ValidateRectangular checks every row has the length of the first.
func ValidateRectangular(m [][]float64) error {
	for i, row := range m {
		if len(row) != len(m[0]) {
			return fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), len(m[0]), ErrNotRectangular)
		}
	}
	return nil
}

// ValidateSquare checks rows == cols.
func ValidateSquare(m [][]float64) error {
	if len(m) == 0 {
		return fmt.Errorf("empty matrix: %w", ErrNotSquare)
	}
	if len(m[0]) != len(m) {
		return fmt.Errorf("%dx%d: %w", len(m), len(m[0]), ErrNotSquare)
	}
	return nil
}

// IsSymmetric reports |a[i][j]-a[j][i]| <= Tolerance for all i, j.
func IsSymmetric(m [][]float64) bool {
	if ValidateSquare(m) != nil {
		return false
	}
	for i := range m {
		for j := i + 1; j < len(m); j++ {
			if math.Abs(m[i][j]-m[j][i]) > Tolerance {
				return false
			}
		}
	}
	return true
}

// IsPositiveDefinite attempts a Cholesky decomposition; any non-positive
// pivot means the matrix is not positive-definite.
func IsPositiveDefinite(m [][]float64) bool {
	if ValidateSquare(m) != nil {
		return false
	}
	n := len(m)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := m[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return false
				}
				l[i][i] = math.Sqrt(sum)
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}
	return true
}

// IsCorrelation reports a symmetric matrix with unit diagonal and
// off-diagonal entries in [-1, 1].
func IsCorrelation(m [][]float64) bool {
	if !IsSymmetric(m) {
		return false
	}
	for i := range m {
		for j := range m[i] {
			if i == j {
				if math.Abs(m[i][j]-1) > Tolerance {
					return false
				}
				continue
			}
			if m[i][j] < -1 || m[i][j] > 1 {
				return false
			}
		}
	}
	return true
}

// checkMatrix runs rectangularity first; other matrix rules only run on a
// rectangular numeric matrix.
func checkMatrix(rows []any, s *Structural) (any, []string) {
	m, err := ToMatrix(rows)
	if err != nil {
		return rows, []string{err.Error()}
	}

	out := checkLength(len(m), s)
	needSquare := s.Square || s.Symmetric || s.PositiveDefinite || s.Correlation
	if needSquare {
		if err := ValidateSquare(m); err != nil {
			return m, append(out, err.Error())
		}
	}
	if s.Symmetric && !IsSymmetric(m) {
		out = append(out, ErrNotSymmetric.Error())
	}
	if s.PositiveDefinite && !IsPositiveDefinite(m) {
		out = append(out, ErrNotPositiveDefinite.Error())
	}
	if s.Correlation && !IsCorrelation(m) {
		out = append(out, ErrNotCorrelation.Error())
	}
	return m, out
}
