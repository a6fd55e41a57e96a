package ingest

import (
	"errors"
	"fmt"

	"github.com/ryabkov82/um-label-server/internal/barcode"
	"github.com/ryabkov82/um-label-server/internal/render"
)

var (
	// ErrInvalidMapping rejects a whole batch before any row is processed
	ErrInvalidMapping = errors.New("invalid mapping")
	// ErrMissingColumn is returned when a mapped column is absent from a row
	ErrMissingColumn = errors.New("missing column")
	// ErrInvalidFieldFormat is returned when a value has the wrong shape for its field
	ErrInvalidFieldFormat = errors.New("invalid field format")
	// ErrEmptyRequiredField is returned when a required field is blank after trimming
	ErrEmptyRequiredField = errors.New("empty required field")
	// ErrEmptyBatch is returned when an archive would contain no labels
	ErrEmptyBatch = errors.New("empty batch")
	// ErrReadFailed wraps failures to open or parse the input table
	ErrReadFailed = errors.New("read failed")
	// ErrRenderFailed wraps unexpected compositor or encoder failures
	ErrRenderFailed = errors.New("render failed")
)

// Kind is the report code of a failure
type Kind string

const (
	KindInvalidMapping       Kind = "InvalidMapping"
	KindMissingColumn        Kind = "MissingColumn"
	KindInvalidFieldFormat   Kind = "InvalidFieldFormat"
	KindEmptyRequiredField   Kind = "EmptyRequiredField"
	KindInvalidPayloadLength Kind = "InvalidPayloadLength"
	KindLabelTooSmall        Kind = "LabelTooSmall"
	KindRenderFailed         Kind = "RenderFailed"
	KindEmptyBatch           Kind = "EmptyBatch"
	KindInvalidSpec          Kind = "InvalidSpec"
	KindReadFailed           Kind = "ReadFailed"
)

// Stage names the pipeline step where a row failed
type Stage string

const (
	StageMap     Stage = "map"
	StageEncode  Stage = "encode"
	StageCompose Stage = "compose"
	StagePNG     Stage = "png"
)

// FieldError ties a row-level failure to the logical field that caused it
type FieldError struct {
	Field Field
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("field %s: %v (value %q)", e.Field, e.Err, e.Value)
	}
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// KindOf classifies err into a report code. Unknown errors are RenderFailed.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidMapping):
		return KindInvalidMapping
	case errors.Is(err, ErrMissingColumn):
		return KindMissingColumn
	case errors.Is(err, ErrInvalidFieldFormat):
		return KindInvalidFieldFormat
	case errors.Is(err, ErrEmptyRequiredField):
		return KindEmptyRequiredField
	case errors.Is(err, barcode.ErrInvalidPayloadLength):
		return KindInvalidPayloadLength
	case errors.Is(err, render.ErrLabelTooSmall):
		return KindLabelTooSmall
	case errors.Is(err, ErrEmptyBatch):
		return KindEmptyBatch
	case errors.Is(err, render.ErrInvalidSpec):
		return KindInvalidSpec
	case errors.Is(err, ErrReadFailed):
		return KindReadFailed
	default:
		return KindRenderFailed
	}
}
