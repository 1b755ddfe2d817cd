package intake

import (
	"fmt"
	"strings"
)

// State is a step of the submission lifecycle.
type State int

const (
	StateReceived State = iota
	StateValidating
	StateRejected
	StateAttachmentPending
	StateAttachmentStored
	StateAttachmentSkipped
	StateCommitting
	StateCommitted
	StateRolledBack
)

var stateNames = map[State]string{
	StateReceived:          "received",
	StateValidating:        "validating",
	StateRejected:          "rejected",
	StateAttachmentPending: "attachment_pending",
	StateAttachmentStored:  "attachment_stored",
	StateAttachmentSkipped: "attachment_skipped",
	StateCommitting:        "committing",
	StateCommitted:         "committed",
	StateRolledBack:        "rolled_back",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateCommitted || s == StateRolledBack
}

// Disposition classifies how a submission ended.
type Disposition string

const (
	DispositionSuccess         Disposition = "success"
	DispositionValidationError Disposition = "validation_error"
	DispositionStorageError    Disposition = "storage_error"
)

// Category is the flash category shown to the user. The attachment warning
// is shown as an error.
type Category string

const (
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
)

// Message is one user visible notice, displayed on the next page view.
type Message struct {
	Category Category `json:"c"`
	Text     string   `json:"t"`
}

// User facing texts.
const (
	MsgValidation      = "Error: Please fill in all required fields (*) and confirm accuracy."
	MsgAttachmentWrite = "Warning: Could not upload the file. Submitting request without it."
	MsgConnection      = "Error: Database connection failed. Please try again later."
	MsgPersistence     = "Error: An internal error occurred while submitting your request. Please try again later."
	MsgSuccess         = "Success! Your request has been submitted. We will get back to you soon."
)

// MsgUnsupportedAttachment lists the accepted extensions.
func MsgUnsupportedAttachment() string {
	return "Error: Invalid file type. Allowed: " + strings.Join(AllowedExtensions(), ", ")
}

// Outcome is the result of processing one submission.
type Outcome struct {
	State       State
	Disposition Disposition
	// RecordID is set when State is StateCommitted.
	RecordID int64
	// StoredFile is the attachment name referenced by the committed row.
	StoredFile    string
	StoredBytes   int64
	AttachmentErr error
	// Err is the cause of a rejection or rollback.
	Err      error
	Messages []Message
}

// Succeeded reports whether a record was committed.
func (o Outcome) Succeeded() bool {
	return o.State == StateCommitted
}

// Warned reports whether the attachment was dropped.
func (o Outcome) Warned() bool {
	return o.AttachmentErr != nil
}
