package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"csr-intake/internal/intake"
	"csr-intake/internal/logging"
)

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to temporary files.
const multipartMemory = 1 << 20

// submitHandler handles POST /submit_csr. Every processed submission ends in
// a 303 redirect back to the form with its messages in a flash cookie; only
// bodies that cannot be read at all are answered directly.
func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), s.logger)

	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	// ParseMultipartForm reports ErrNotMultipart in place of a url-encoded
	// body's read error, so the plain form is parsed first.
	if err := r.ParseForm(); err != nil {
		rejectBody(w, log, err)
		return
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		rejectBody(w, log, err)
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	sub := intake.Submission{Fields: formFields(r)}

	file, header, err := r.FormFile("attachment")
	switch {
	case err == nil:
		defer func() { _ = file.Close() }()
		sub.Attachment = &intake.Attachment{Filename: header.Filename, Content: file}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		log.Info("unreadable attachment part", zap.Error(err))
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	out := s.cfg.Submitter.Process(r.Context(), sub)
	s.metrics.observeOutcome(out)

	if err := s.flashes.set(w, out.Messages); err != nil {
		log.Error("set flash cookie", zap.Error(err))
	}
	http.Redirect(w, r, "/#csr-form", http.StatusSeeOther)
}

// rejectBody answers a body that could not be read: 413 past the size cap,
// 400 otherwise.
func rejectBody(w http.ResponseWriter, log *zap.Logger, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		log.Info("submission too large", zap.Int64("limit", tooLarge.Limit))
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}
	log.Info("malformed submission body", zap.Error(err))
	http.Error(w, "malformed form body", http.StatusBadRequest)
}

func formFields(r *http.Request) intake.Fields {
	v := r.PostForm
	return intake.Fields{
		FullName:     v.Get("full_name"),
		Email:        v.Get("email"),
		Phone:        v.Get("phone"),
		CustomerID:   v.Get("customer_id"),
		RequestType:  v.Get("request_type"),
		Subject:      v.Get("subject"),
		Description:  v.Get("description"),
		City:         v.Get("city"),
		State:        v.Get("state"),
		PostalCode:   v.Get("postal_code"),
		ContactTime:  v.Get("contact_time"),
		Confirmation: v.Get("confirmation"),
	}
}
