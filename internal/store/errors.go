package store

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports field-level constraint violations, keyed by field
// name. Uniqueness violations are reported the same way.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready to collect fields.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a message for field, keeping the first message per field.
func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// OrNil returns e when it holds at least one field, nil otherwise.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// DuplicateError builds the ValidationError reported for a unique field.
func DuplicateError(field string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: field + " already exists"}}
}

// InvalidIDError is returned when an identifier is not a valid ObjectID.
type InvalidIDError struct {
	Field string
	Value string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// ParseID parses a hex ObjectID, reporting failures against field.
func ParseID(field, value string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(value))
	if err != nil {
		return primitive.NilObjectID, &InvalidIDError{Field: field, Value: value}
	}
	return id, nil
}

var duplicateIndexPattern = regexp.MustCompile(`index: (\w+?)_-?1`)

// DuplicateField extracts the offending field from a duplicate key error.
func DuplicateField(err error) string {
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if keyValue, lookupErr := we.Raw.LookupErr("keyValue"); lookupErr == nil {
				if doc, ok := keyValue.DocumentOK(); ok {
					if elems, elemErr := doc.Elements(); elemErr == nil && len(elems) > 0 {
						return elems[0].Key()
					}
				}
			}
			if match := duplicateIndexPattern.FindStringSubmatch(we.Message); len(match) == 2 {
				return match[1]
			}
		}
	}
	if match := duplicateIndexPattern.FindStringSubmatch(err.Error()); len(match) == 2 {
		return match[1]
	}
	return "key"
}

// translateWriteError maps driver write failures onto store errors.
func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return DuplicateError(DuplicateField(err))
	}
	return err
}
