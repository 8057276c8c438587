package mapping

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// RulesError is a rules-file validation failure with source position.
type RulesError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *RulesError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &RulesError{
			Field:   "rules",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

// SchemaError means the field mapper could not produce a target payload
// the target process would accept. The item is flagged for manual review;
// the run continues.
type SchemaError struct {
	SourceID   int
	TargetType string
	Missing    []string
	Reason     string
}

// Error renders the reason without the source id; callers report it next
// to the item it belongs to.
func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("required target fields have no value or default: %s",
			strings.Join(e.Missing, ", "))
	}
	return e.Reason
}

// IsSchemaError reports whether err is a mapping SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
