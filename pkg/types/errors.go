// Package types holds the error taxonomy shared by the plotter's packages.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error tag constants.
const (
	TagIllegalCharacter    = "IllegalCharacter"
	TagStructurallyInvalid = "StructurallyInvalid"
	TagOperandTooWide      = "OperandTooWide"
	TagDivisionFault       = "DivisionFault"
	TagShiftFault          = "ShiftFault"
	TagParseError          = "ParseError"
	TagEvaluationError     = "EvaluationError"
	TagNotFound            = "NotFound"
	TagAlreadyExists       = "AlreadyExists"
	TagInvalidArgument     = "InvalidArgument"
)

// PlotError is an error with a message and a set of classification tags.
type PlotError struct {
	Message string
	Tags    []string
	Extra   map[string]interface{} // additional fields (e.g. parameter for faults)
	Err     error
}

// Error implements the error interface.
func (e *PlotError) Error() string {
	return fmt.Sprintf("%s (tags=[%s])", e.Message, strings.Join(e.Tags, ", "))
}

// Unwrap returns the underlying error, if any.
func (e *PlotError) Unwrap() error {
	return e.Err
}

// HasTag returns true if the error has the specified tag.
func (e *PlotError) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ToMap converts a PlotError into a JSON-friendly map.
func (e *PlotError) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"message": e.Message,
		"tags":    append([]string(nil), e.Tags...),
	}
	for k, v := range e.Extra {
		m[k] = v
	}
	return m
}

// Tagged is implemented by errors that can describe themselves as a PlotError.
type Tagged interface {
	error
	PlotError() *PlotError
}

// AsPlotError converts err into a *PlotError. Errors that are neither a
// *PlotError nor Tagged are wrapped with no tags.
func AsPlotError(err error) *PlotError {
	if err == nil {
		return nil
	}
	var pe *PlotError
	if errors.As(err, &pe) {
		return pe
	}
	var t Tagged
	if errors.As(err, &t) {
		return t.PlotError()
	}
	return &PlotError{Message: err.Error(), Err: err}
}

// HasTag reports whether err converts to a PlotError carrying tag.
func HasTag(err error, tag string) bool {
	pe := AsPlotError(err)
	return pe != nil && pe.HasTag(tag)
}

// Common error constructors.

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(msg string) *PlotError {
	return &PlotError{Message: msg, Tags: []string{TagNotFound}}
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(msg string) *PlotError {
	return &PlotError{Message: msg, Tags: []string{TagAlreadyExists}}
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(msg string) *PlotError {
	return &PlotError{Message: msg, Tags: []string{TagInvalidArgument}}
}
