package bucket

import "errors"

var (
	// ErrBucketNotFound indicates the requested bucket does not exist for the user.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrNameExhausted is returned when no free repository name could be
	// found within the configured number of sequence attempts.
	ErrNameExhausted = errors.New("bucket name attempts exhausted")
)
