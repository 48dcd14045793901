package extract

import (
	"errors"
	"fmt"
)

// ErrorKind tags a ParseError. The set is closed; callers switch on it.
type ErrorKind int

const (
	// EmptyInput means there was nothing to parse (empty path, or an empty buffer under WithRejectEmpty).
	EmptyInput ErrorKind = iota + 1
	// IoFailure means the file could not be read. The underlying cause is attached.
	IoFailure
	// UnsupportedFormat means the format is unrecognized, mislabeled or has no extractor.
	UnsupportedFormat
	// CorruptDocument means the bytes violate the structural rules of their format.
	CorruptDocument
)

func (k ErrorKind) String() string {
	switch k {
	case EmptyInput:
		return "empty_input"
	case IoFailure:
		return "io_failure"
	case UnsupportedFormat:
		return "unsupported_format"
	case CorruptDocument:
		return "corrupt_document"
	default:
		return "unknown"
	}
}

// Stage is the facade state in which a parse failed.
type Stage string

const (
	StageRead     Stage = "read"
	StageSniff    Stage = "sniff"
	StageDispatch Stage = "dispatch"
	StageExtract  Stage = "extract"
)

// ParseError is the only error type Parse and ParseBytes return.
type ParseError struct {
	Kind     ErrorKind
	Stage    Stage
	FileName string
	Message  string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil && e.Kind == IoFailure {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches any *ParseError with the same Kind, so the sentinels below work with errors.Is.
func (e *ParseError) Is(target error) bool {
	var t *ParseError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is(err, extract.ErrUnsupportedFormat) and friends.
var (
	ErrEmptyInput        = &ParseError{Kind: EmptyInput, Message: "empty input"}
	ErrIoFailure         = &ParseError{Kind: IoFailure, Message: "i/o failure"}
	ErrUnsupportedFormat = &ParseError{Kind: UnsupportedFormat, Message: "unsupported file format"}
	ErrCorruptDocument   = &ParseError{Kind: CorruptDocument, Message: "corrupt document"}
)

// KindOf returns the ErrorKind of the first ParseError in err's chain, or 0 when there is none.
func KindOf(err error) ErrorKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// structuralError is what extractors return; the facade turns it into CorruptDocument.
type structuralError struct {
	format string
	err    error
}

func (e *structuralError) Error() string { return e.format + ": " + e.err.Error() }
func (e *structuralError) Unwrap() error { return e.err }

func corruptf(format, msg string, args ...any) error {
	return &structuralError{format: format, err: fmt.Errorf(msg, args...)}
}

func corrupt(format string, err error) error {
	return &structuralError{format: format, err: err}
}
