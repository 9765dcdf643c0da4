package memes

import (
	"errors"
)

// Error taxonomy shared by the store, media and dispatcher packages. Callers wrap
// these with context using fmt.Errorf("...: %w", ...) and classify with errors.Is.
var (
	// ErrRemoteUnavailable covers network and auth failures against the document store or media host.
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrMalformedDocument means the stored JSON does not have the expected shape.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrUploadFailed means the media host rejected the source URL.
	ErrUploadFailed = errors.New("upload failed")
	// ErrInvalidArgument covers bad indices and missing URLs.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthorized means the moderator capability check failed.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict means the remote document changed between read and write.
	ErrConflict = errors.New("document changed concurrently")
)

// ErrorKind is a coarse label for an error, used for metrics and logs.
type ErrorKind string

const (
	KindRemoteUnavailable ErrorKind = "remote_unavailable"
	KindMalformedDocument ErrorKind = "malformed_document"
	KindUploadFailed      ErrorKind = "upload_failed"
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindConflict          ErrorKind = "conflict"
	KindUnknown           ErrorKind = "unknown"
)

// Classify maps an error onto the taxonomy. Errors outside of it are KindUnknown.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrMalformedDocument):
		return KindMalformedDocument
	case errors.Is(err, ErrUploadFailed):
		return KindUploadFailed
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrRemoteUnavailable):
		return KindRemoteUnavailable
	default:
		return KindUnknown
	}
}

// IsUserFacing reports whether err should be answered with a specific reply
// instead of the generic failure message.
func IsUserFacing(err error) bool {
	k := Classify(err)
	return k == KindUnauthorized || k == KindInvalidArgument
}
