package intake

import (
	"fmt"
	"io"
	"strings"

	"csr-intake/internal/requests"
)

// DefaultContactTime is stored when no preferred contact time was chosen.
const DefaultContactTime = "Any Time"

// Fields are the text inputs of the form, as submitted.
type Fields struct {
	FullName     string
	Email        string
	Phone        string
	CustomerID   string
	RequestType  string
	Subject      string
	Description  string
	City         string
	State        string
	PostalCode   string
	ContactTime  string
	Confirmation string
}

// Attachment is the optional uploaded file.
type Attachment struct {
	Filename string
	Content  io.Reader
}

// Submission is one form post.
type Submission struct {
	Fields     Fields
	Attachment *Attachment
}

// HasAttachment reports whether a file part with a name was sent. Browsers
// send an empty part with no filename when nothing was chosen.
func (s Submission) HasAttachment() bool {
	return s.Attachment != nil && s.Attachment.Filename != ""
}

// Validate checks the required fields and fills defaults. Values are kept
// exactly as submitted; only the emptiness check ignores surrounding
// whitespace, so a required field holding only spaces counts as missing
// even though a plain non-empty check would accept it.
func Validate(f Fields) (Fields, error) {
	required := []struct {
		name, value string
	}{
		{"full_name", f.FullName},
		{"email", f.Email},
		{"request_type", f.RequestType},
		{"subject", f.Subject},
		{"description", f.Description},
		{"confirmation", f.Confirmation},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return f, fmt.Errorf("%w: %s", ErrValidation, strings.Join(missing, ", "))
	}

	if strings.TrimSpace(f.ContactTime) == "" {
		f.ContactTime = DefaultContactTime
	}
	return f, nil
}

// record maps validated fields onto a request row without attachment.
func (f Fields) record() requests.Record {
	return requests.Record{
		FullName:             f.FullName,
		Email:                f.Email,
		Phone:                f.Phone,
		CustomerID:           f.CustomerID,
		RequestType:          f.RequestType,
		Subject:              f.Subject,
		Description:          f.Description,
		City:                 f.City,
		State:                f.State,
		PostalCode:           f.PostalCode,
		PreferredContactTime: f.ContactTime,
	}
}
