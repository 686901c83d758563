package schema

import "errors"

// Schema maps field names to their declared types.
// Example: {"age": Int(), "consent": Bool(), "allergies": Slice(String())}
type Schema map[string]Type

// ValidateDelta checks the fields present in a partial extraction delta
// against the schema. Fields absent from the delta are not errors (they are
// simply still missing); fields absent from the schema pass through untyped.
// Returns an AggregateError listing every failing field.
func ValidateDelta(schema Schema, delta map[string]any) error {
	if len(schema) == 0 || len(delta) == 0 {
		return nil
	}

	var errs []error
	for fieldName, value := range delta {
		fieldType, constrained := schema[fieldName]
		if !constrained {
			continue
		}
		if err := fieldType.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Field:  fieldName,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Invalid returns the delta fields that fail the schema, mapped to the
// failure reason. The flow engine drops these fields and merges the rest of
// the turn.
func Invalid(schema Schema, delta map[string]any) map[string]string {
	errs := ValidationErrors(ValidateDelta(schema, delta))
	if len(errs) == 0 {
		return nil
	}

	dropped := make(map[string]string, len(errs))
	for _, err := range errs {
		var field *ValidationError
		if errors.As(err, &field) {
			dropped[field.Field] = field.Reason
		}
	}
	return dropped
}
