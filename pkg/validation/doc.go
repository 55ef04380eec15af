// Package validation checks write payloads before they reach the network or
// the store.
//
// Payload types declare their rules with `validate:` struct tags understood
// by go-playground/validator. Struct returns nil or an *Error listing every
// violated field by its JSON name:
//
//	if err := validation.Struct(data); err != nil {
//		return nil, err // *validation.Error
//	}
//
// Callers tell validation failures apart from remote failures with
// IsValidationError or errors.As.
package validation
