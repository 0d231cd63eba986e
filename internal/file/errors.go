package file

import "errors"

var (
	// ErrFileNotFound signals that the file does not exist for the caller.
	// Ownership misses report not-found as well, never forbidden.
	ErrFileNotFound = errors.New("file not found")
	// ErrFileTooLarge signals that the upload exceeds the configured ceiling.
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyFile signals a zero-length upload.
	ErrEmptyFile = errors.New("empty file")
	// ErrContentTypeNotAllowed signals a content type outside the allow-list.
	ErrContentTypeNotAllowed = errors.New("content type not allowed")
	// ErrInvalidFilename signals a filename that is empty after sanitization.
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrBatchTooLarge signals a batch above the configured item ceiling.
	ErrBatchTooLarge = errors.New("too many files in batch")
)
