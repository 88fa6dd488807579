// Package extract turns uploaded policy documents into plain text.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// MaxDocumentBytes is the largest document accepted for extraction.
const MaxDocumentBytes = 4 * 1024 * 1024

// FailureKind distinguishes why extraction produced no text.
type FailureKind string

const (
	FailureTooLarge    FailureKind = "too_large"
	FailureUnsupported FailureKind = "unsupported"
	FailureParseError  FailureKind = "parse_error"
	FailureNoText      FailureKind = "no_text"
)

// Failure is a non-fatal extraction outcome. The Message is shown to end
// users verbatim, so it must say what went wrong in plain language.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string { return f.Message }

// Extract dispatches on the declared media type and returns the document's
// plain text, or a Failure describing why no text is available. It never
// panics on malformed input.
func Extract(data []byte, mediaType string) (string, *Failure) {
	if len(data) > MaxDocumentBytes {
		return "", &Failure{
			Kind:    FailureTooLarge,
			Message: "Policy file is too large. Maximum size is 4 MB.",
		}
	}

	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "application/pdf", "application/octet-stream":
		return extractPDF(data)
	case "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return extractWord(data)
	default:
		return "", &Failure{
			Kind:    FailureUnsupported,
			Message: fmt.Sprintf("Unsupported file type: %s. Use .pdf or .doc/.docx.", mediaType),
		}
	}
}

func extractPDF(data []byte) (string, *Failure) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &Failure{
			Kind:    FailureParseError,
			Message: fmt.Sprintf("PDF extraction failed: %v", err),
		}
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", &Failure{
			Kind:    FailureParseError,
			Message: fmt.Sprintf("PDF extraction failed: %v", err),
		}
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", &Failure{
			Kind:    FailureParseError,
			Message: fmt.Sprintf("PDF extraction failed: %v", err),
		}
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", &Failure{
			Kind:    FailureNoText,
			Message: "No text could be extracted from the PDF.",
		}
	}
	return text, nil
}

// extractWord reads the OpenXML zip container and gathers the <w:t> text
// runs from word/document.xml. A legacy .doc that is not a zip container
// fails the zip open and surfaces as a parse failure.
func extractWord(data []byte) (string, *Failure) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &Failure{
			Kind:    FailureParseError,
			Message: fmt.Sprintf("Document extraction failed: %v", err),
		}
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", &Failure{
			Kind:    FailureParseError,
			Message: "Document extraction failed: missing word/document.xml",
		}
	}

	rc, err := doc.Open()
	if err != nil {
		return "", &Failure{
			Kind:    FailureParseError,
			Message: fmt.Sprintf("Document extraction failed: %v", err),
		}
	}
	xmlBytes, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return "", &Failure{
			Kind:    FailureParseError,
			Message: fmt.Sprintf("Document extraction failed: %v", err),
		}
	}

	text := strings.TrimSpace(wordTextRuns(xmlBytes))
	if text == "" {
		return "", &Failure{
			Kind:    FailureNoText,
			Message: "No text could be extracted from the document.",
		}
	}
	return text, nil
}

// wordTextRuns walks the document XML and concatenates <w:t> elements,
// inserting breaks at paragraph boundaries.
func wordTextRuns(xmlBytes []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "t":
			var v string
			if err := dec.DecodeElement(&v, &se); err == nil && v != "" {
				out.WriteString(v)
			}
		case "p":
			if out.Len() > 0 {
				out.WriteString("\n")
			}
		}
	}
	return out.String()
}
