package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrEmbeddingStatus      = errors.New("embedding service returned an error status")
	ErrMalformedResponse    = errors.New("malformed embedding response")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
	ErrStore                = errors.New("vector store error")
	ErrUnsupportedWidth     = errors.New("unsupported reduction width")
	ErrDerivationMismatch   = errors.New("reduced vectors do not match their embedding")
)

// OpError names the failing step of a procedure. Line is the 1-based source
// line for ingestion steps and zero otherwise.
type OpError struct {
	Op   string
	Line int
	Err  error
}

func (e *OpError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s [line=%d]: %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewOpError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func NewLineError(op string, line int, err error) *OpError {
	return &OpError{Op: op, Line: line, Err: err}
}
