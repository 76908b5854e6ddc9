package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueType is the contract for a socket value type. Values are held in
// their canonical Go form: bool, int64, float64 or string for the
// built-in types.
type ValueType struct {
	Name string

	// Creator returns the zero value.
	Creator func() any

	// Deserialize converts a decoded JSON or YAML value into canonical form.
	Deserialize func(v any) (any, error)

	// Serialize converts a canonical value into a JSON-friendly one.
	Serialize func(v any) any

	// Clone returns an independent copy.
	Clone func(v any) any

	// Equals compares two canonical values.
	Equals func(a, b any) bool

	// Lerp interpolates between a and b. Nil when the type does not interpolate.
	Lerp func(a, b any, t float64) any
}

// BuiltinValueTypes returns the boolean, integer, float and string types.
func BuiltinValueTypes() []ValueType {
	return []ValueType{BooleanValue(), IntegerValue(), FloatValue(), StringValue()}
}

func identity(v any) any { return v }

func equal(a, b any) bool { return a == b }

// BooleanValue is the "boolean" type.
func BooleanValue() ValueType {
	return ValueType{
		Name:    "boolean",
		Creator: func() any { return false },
		Deserialize: func(v any) (any, error) {
			switch x := v.(type) {
			case bool:
				return x, nil
			case string:
				b, err := strconv.ParseBool(x)
				if err != nil {
					return nil, fmt.Errorf("boolean: %w", err)
				}
				return b, nil
			case float64:
				return x != 0, nil
			case int64:
				return x != 0, nil
			case int:
				return x != 0, nil
			}
			return nil, fmt.Errorf("boolean: cannot convert %T", v)
		},
		Serialize: identity,
		Clone:     identity,
		Equals:    equal,
	}
}

// IntegerValue is the "integer" type, held as int64.
func IntegerValue() ValueType {
	return ValueType{
		Name:    "integer",
		Creator: func() any { return int64(0) },
		Deserialize: func(v any) (any, error) {
			switch x := v.(type) {
			case int64:
				return x, nil
			case int:
				return int64(x), nil
			case float64:
				if x != math.Trunc(x) {
					return nil, fmt.Errorf("integer: %v has a fractional part", x)
				}
				return int64(x), nil
			case json.Number:
				return x.Int64()
			case string:
				i, err := strconv.ParseInt(x, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("integer: %w", err)
				}
				return i, nil
			}
			return nil, fmt.Errorf("integer: cannot convert %T", v)
		},
		Serialize: identity,
		Clone:     identity,
		Equals:    equal,
		Lerp: func(a, b any, t float64) any {
			x, y := a.(int64), b.(int64)
			return int64(math.Round(float64(x) + float64(y-x)*t))
		},
	}
}

// FloatValue is the "float" type, held as float64.
func FloatValue() ValueType {
	return ValueType{
		Name:    "float",
		Creator: func() any { return 0.0 },
		Deserialize: func(v any) (any, error) {
			switch x := v.(type) {
			case float64:
				return x, nil
			case float32:
				return float64(x), nil
			case int64:
				return float64(x), nil
			case int:
				return float64(x), nil
			case json.Number:
				return x.Float64()
			case string:
				f, err := strconv.ParseFloat(x, 64)
				if err != nil {
					return nil, fmt.Errorf("float: %w", err)
				}
				return f, nil
			}
			return nil, fmt.Errorf("float: cannot convert %T", v)
		},
		Serialize: identity,
		Clone:     identity,
		Equals:    equal,
		Lerp: func(a, b any, t float64) any {
			x, y := a.(float64), b.(float64)
			return x + (y-x)*t
		},
	}
}

// StringValue is the "string" type.
func StringValue() ValueType {
	return ValueType{
		Name:    "string",
		Creator: func() any { return "" },
		Deserialize: func(v any) (any, error) {
			switch x := v.(type) {
			case string:
				return x, nil
			case nil:
				return "", nil
			}
			return fmt.Sprint(v), nil
		},
		Serialize: identity,
		Clone:     identity,
		Equals:    equal,
	}
}
