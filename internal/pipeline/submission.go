package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sells-group/map-review/internal/extract"
)

var allowedDocumentTypes = map[string]bool{
	"application/pdf":          true,
	"application/msword":       true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/octet-stream": true,
}

// Submission is one assessment request as received from the outside.
type Submission struct {
	UPC      string
	MAPPrice float64
	FileName string
	FileType string
	Data     []byte
}

// ValidationError rejects a submission before any record is created.
// Message is safe to show to end users.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate checks the submission shape. Checks run in a fixed order so the
// user fixes one problem at a time: identifier, price, file presence, file
// type, file size.
func (s *Submission) Validate() *ValidationError {
	if strings.TrimSpace(s.UPC) == "" {
		return &ValidationError{Message: "UPC is required."}
	}
	if math.IsNaN(s.MAPPrice) || math.IsInf(s.MAPPrice, 0) || s.MAPPrice <= 0 {
		return &ValidationError{Message: "MAP price is required and must be a positive number."}
	}
	if len(s.Data) == 0 {
		return &ValidationError{Message: "Policy document (PDF or Word) is required."}
	}
	if !allowedDocumentTypes[s.normalizedType()] {
		got := s.FileType
		if got == "" {
			got = "unknown"
		}
		return &ValidationError{
			Message: fmt.Sprintf("Unsupported policy file type. Use .pdf or .doc/.docx. Got: %s.", got),
		}
	}
	if len(s.Data) > extract.MaxDocumentBytes {
		return &ValidationError{
			Message: "Policy file is too large. Maximum size is 4 MB (to stay within upload limits).",
		}
	}
	return nil
}

// normalizedType lower-cases the declared type, defaulting to an unknown
// binary when the upload carried none.
func (s *Submission) normalizedType() string {
	t := strings.ToLower(strings.TrimSpace(s.FileType))
	if t == "" {
		return "application/octet-stream"
	}
	return t
}

// formattedPrice renders the MAP price the way it is persisted and
// displayed, with exactly two decimal places.
func (s *Submission) formattedPrice() string {
	return fmt.Sprintf("%.2f", s.MAPPrice)
}

var fileKeyUnsafe = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// sanitizeFileName keeps object keys portable across blob backends.
func sanitizeFileName(name string) string {
	return fileKeyUnsafe.ReplaceAllString(name, "_")
}
