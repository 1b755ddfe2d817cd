package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"csr-intake/internal/intake"
	"csr-intake/internal/logging"
)

//go:embed templates/*.html static
var assets embed.FS

var pageTemplate = template.Must(template.ParseFS(assets, "templates/index.html"))

// Choices offered by the form's select inputs.
var (
	requestTypes = []string{
		"General Inquiry",
		"Technical Support",
		"Billing Question",
		"Account Management",
		"Feedback",
		"Complaint",
		"Other",
	}
	contactTimes = []string{intake.DefaultContactTime, "Morning", "Afternoon", "Evening"}
)

type pageData struct {
	Messages          []intake.Message
	RequestTypes      []string
	ContactTimes      []string
	AllowedExtensions string
	Accept            string
	MaxUpload         string
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), s.logger)

	msgs, err := s.flashes.pop(w, r)
	if err != nil {
		log.Debug("discarding flash cookie", zap.Error(err))
	}

	exts := intake.AllowedExtensions()
	accept := make([]string, len(exts))
	for i, ext := range exts {
		accept[i] = "." + ext
	}

	data := pageData{
		Messages:          msgs,
		RequestTypes:      requestTypes,
		ContactTimes:      contactTimes,
		AllowedExtensions: strings.Join(exts, ", "),
		Accept:            strings.Join(accept, ","),
		MaxUpload:         humanBytes(s.cfg.MaxUploadBytes),
	}

	// Render to a buffer so a template failure still yields a clean 500.
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		log.Error("render form", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func humanBytes(n int64) string {
	switch {
	case n <= 0:
		return ""
	case n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
