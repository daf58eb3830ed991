package flow

import (
	"fmt"

	"github.com/isometry/dirsync/config"
)

// ConversionError reports a converter that could not produce its output
// value. One failed conversion aborts the remainder of the pass so a record
// never lands half-translated.
type ConversionError struct {
	// Attribute is the destination attribute the converter writes.
	Attribute string
	// Direction is the pass the converter belongs to.
	Direction config.Direction
	// Reason describes what went wrong in converter terms.
	Reason string
	// Cause is the underlying error, when one exists.
	Cause error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("convert %s on %s: %s", e.Attribute, e.Direction, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Cause }

func conversionErrorf(cfg config.ConverterSpec, cause error, format string, args ...any) *ConversionError {
	return &ConversionError{
		Attribute: cfg.Attribute,
		Direction: cfg.Direction(),
		Reason:    fmt.Sprintf(format, args...),
		Cause:     cause,
	}
}
