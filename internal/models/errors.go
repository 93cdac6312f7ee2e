package models

import "errors"

// Client input errors. These block a submission and are never retried.
var (
	ErrNoFiles         = errors.New("no files selected")
	ErrTooManyFiles    = errors.New("too many files")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrCorruptFile     = errors.New("file is corrupted or unreadable")
	ErrUnknownMode     = errors.New("unknown summary mode")
	ErrMissingModel    = errors.New("no model selected")
	ErrEmptyTemplate   = errors.New("prompt template is empty")
	ErrInvalidEmail    = errors.New("invalid notification email")
)

// Workflow errors.
var (
	ErrSubmissionInFlight = errors.New("a submission is already processing")
	ErrUploadFailed       = errors.New("upload failed")
	ErrNoJobID            = errors.New("no uniqueId received from server")
)
