package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type checks that an extracted value matches a declared field type.
type Type interface {
	// Name is the script-facing type name ("int", "bool", "[string]", ...).
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

type fieldType struct {
	name  string
	check func(any) error
}

func (t fieldType) Name() string            { return t.name }
func (t fieldType) Validate(value any) error { return t.check(value) }

// String accepts string values.
func String() Type {
	return fieldType{name: "string", check: func(value any) error {
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		return nil
	}}
}

// Int accepts integers, including the whole-number floats JSON decoding
// produces for ages and counts.
func Int() Type {
	return fieldType{name: "int", check: func(value any) error {
		switch v := value.(type) {
		case int, int8, int16, int32, int64:
			return nil
		case float64:
			if v == float64(int64(v)) {
				return nil
			}
			return fmt.Errorf("expected int, got float (not a whole number)")
		default:
			return fmt.Errorf("expected int, got %T", value)
		}
	}}
}

// Float accepts any numeric value.
func Float() Type {
	return fieldType{name: "float", check: func(value any) error {
		switch value.(type) {
		case float32, float64, int, int8, int16, int32, int64:
			return nil
		default:
			return fmt.Errorf("expected float, got %T", value)
		}
	}}
}

// Bool accepts boolean values.
func Bool() Type {
	return fieldType{name: "bool", check: func(value any) error {
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		return nil
	}}
}

// Slice accepts slices whose elements all match the element type. Scripts use
// it for list fields such as medication or allergy enumerations.
func Slice(elem Type) Type {
	return fieldType{name: "[" + elem.Name() + "]", check: func(value any) error {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return fmt.Errorf("expected list, got %T", value)
		}
		for i := 0; i < rv.Len(); i++ {
			if err := elem.Validate(rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	}}
}

// ParseType resolves a script type name. List types wrap their element type
// in brackets: "[string]", "[int]".
func ParseType(name string) (Type, error) {
	if len(name) > 2 && strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		elem, err := ParseType(name[1 : len(name)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}

	switch name {
	case "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool":
		return Bool(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", name)
	}
}

// ParseTypeMap compiles a node's field_types declaration into a Schema.
// Example: {"age": "int", "allergies": "[string]"}
func ParseTypeMap(declared map[string]string) (Schema, error) {
	compiled := make(Schema, len(declared))
	for field, name := range declared {
		t, err := ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		compiled[field] = t
	}
	return compiled, nil
}
