package intake

import "errors"

var (
	// ErrValidation means a required field is missing or blank.
	ErrValidation = errors.New("required field missing")
	// ErrUnsupportedAttachment means the attachment extension is not allow-listed.
	ErrUnsupportedAttachment = errors.New("attachment type not allowed")
	// ErrAttachmentWrite means the allowed attachment could not be stored.
	// The submission continues without it.
	ErrAttachmentWrite = errors.New("attachment write failed")
)
