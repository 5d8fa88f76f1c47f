package validation

import "maps"

// ValueKind is the expected type of a parameter.
type ValueKind string

const (
	KindInteger ValueKind = "integer"
	KindFloat   ValueKind = "float"
	KindString  ValueKind = "string"
	KindBoolean ValueKind = "boolean"
	KindArray   ValueKind = "array"
	KindObject  ValueKind = "object"
)

// Structural holds array, matrix, string and object constraints.
type Structural struct {
	NonEmpty  bool `yaml:"non_empty"`
	MinLength int  `yaml:"min_length"`
	MaxLength int  `yaml:"max_length"`
	Unique    bool `yaml:"unique"`

	// Numeric array constraints.
	NonZeroVariance bool `yaml:"non_zero_variance"`
	NonNegative     bool `yaml:"non_negative"`
	Positive        bool `yaml:"positive"`
	SumToOne        bool `yaml:"sum_to_one"`

	// Matrix constraints. Any of them implies a rectangular 2-D array.
	Matrix           bool `yaml:"matrix"`
	Square           bool `yaml:"square"`
	Symmetric        bool `yaml:"symmetric"`
	PositiveDefinite bool `yaml:"positive_definite"`
	Correlation      bool `yaml:"correlation"`
}

func (s *Structural) matrix() bool {
	return s != nil && (s.Matrix || s.Square || s.Symmetric || s.PositiveDefinite || s.Correlation)
}

func (s *Structural) numeric() bool {
	return s != nil && (s.NonZeroVariance || s.NonNegative || s.Positive || s.SumToOne)
}

// BoundsRule constrains one parameter. Min and Max apply to numbers and to
// every element of numeric arrays.
type BoundsRule struct {
	Kind        ValueKind   `yaml:"kind"`
	Min         *float64    `yaml:"min"`
	Max         *float64    `yaml:"max"`
	ExcludeMin  bool        `yaml:"exclude_min"`
	ExcludeMax  bool        `yaml:"exclude_max"`
	Structural  *Structural `yaml:"structural"`
	Description string      `yaml:"description"`
}

func bound(f float64) *float64 { return &f }

// DefaultRules returns the bounds for the analysis parameters the client
// submits.
func DefaultRules() map[string]BoundsRule {
	return maps.Clone(defaultRules)
}

var defaultRules = map[string]BoundsRule{
	"confidenceLevel": {
		Kind: KindFloat, Min: bound(0), Max: bound(1), ExcludeMin: true, ExcludeMax: true,
		Description: "confidence level strictly between 0 and 1",
	},
	"alpha": {
		Kind: KindFloat, Min: bound(0), Max: bound(1), ExcludeMin: true, ExcludeMax: true,
		Description: "significance level strictly between 0 and 1",
	},
	"power": {
		Kind: KindFloat, Min: bound(0), Max: bound(1), ExcludeMin: true, ExcludeMax: true,
		Description: "statistical power strictly between 0 and 1",
	},
	"sampleSize": {
		Kind: KindInteger, Min: bound(1), Max: bound(1e9),
		Description: "positive whole number of observations",
	},
	"degreesOfFreedom": {
		Kind: KindInteger, Min: bound(1),
		Description: "positive whole number",
	},
	"numberOfGroups": {
		Kind: KindInteger, Min: bound(2), Max: bound(1000),
		Description: "at least two groups",
	},
	"tails": {
		Kind: KindInteger, Min: bound(1), Max: bound(2),
		Description: "one- or two-tailed",
	},
	"iterations": {
		Kind: KindInteger, Min: bound(1), Max: bound(1e7),
	},
	"effectSize": {
		Kind: KindFloat, Min: bound(0), ExcludeMin: true,
	},
	"standardDeviation": {
		Kind: KindFloat, Min: bound(0), ExcludeMin: true,
	},
	"variance": {
		Kind: KindFloat, Min: bound(0), ExcludeMin: true,
	},
	"correlation": {
		Kind: KindFloat, Min: bound(-1), Max: bound(1),
	},
	"mean": {
		Kind: KindFloat,
	},
	"data": {
		Kind:       KindArray,
		Structural: &Structural{NonEmpty: true, MinLength: 2, MaxLength: 1_000_000},
	},
	"weights": {
		Kind:       KindArray,
		Structural: &Structural{NonEmpty: true, NonNegative: true, SumToOne: true},
	},
	"groupLabels": {
		Kind:       KindArray,
		Structural: &Structural{NonEmpty: true, Unique: true},
	},
	"correlationMatrix": {
		Kind:       KindArray,
		Structural: &Structural{Correlation: true},
	},
	"covarianceMatrix": {
		Kind:       KindArray,
		Structural: &Structural{Square: true, Symmetric: true, PositiveDefinite: true},
	},
	"testType": {
		Kind:       KindString,
		Structural: &Structural{NonEmpty: true, MaxLength: 64},
	},
}
