package etl

import "fmt"

// SchemaError reports an observation missing a required identity field.
// It is fatal to the run: the orchestrator finalizes the run record as
// errored and returns the failure to the caller.
type SchemaError struct {
	Row   int
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("transform: row %d is missing required field %q", e.Row, e.Field)
}
