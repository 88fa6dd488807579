package extract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDocx assembles a minimal OpenXML container with the given document
// body XML.
func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

func TestExtract_TooLarge(t *testing.T) {
	data := make([]byte, MaxDocumentBytes+1)

	_, fail := Extract(data, "application/pdf")
	require.NotNil(t, fail)
	assert.Equal(t, FailureTooLarge, fail.Kind)
	assert.Equal(t, "Policy file is too large. Maximum size is 4 MB.", fail.Message)
}

func TestExtract_UnsupportedType(t *testing.T) {
	_, fail := Extract([]byte("hello"), "image/png")
	require.NotNil(t, fail)
	assert.Equal(t, FailureUnsupported, fail.Kind)
	assert.Equal(t, "Unsupported file type: image/png. Use .pdf or .doc/.docx.", fail.Message)
}

func TestExtract_MediaTypeNormalized(t *testing.T) {
	docx := buildDocx(t, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>MAP policy</w:t></w:r></w:p></w:body></w:document>`)

	text, fail := Extract(docx, "  Application/VND.openxmlformats-officedocument.wordprocessingml.document  ")
	require.Nil(t, fail)
	assert.Equal(t, "MAP policy", text)
}

func TestExtract_PDF_Garbage(t *testing.T) {
	_, fail := Extract([]byte("this is not a pdf"), "application/pdf")
	require.NotNil(t, fail)
	assert.Equal(t, FailureParseError, fail.Kind)
	assert.True(t, strings.HasPrefix(fail.Message, "PDF extraction failed: "))
}

func TestExtract_OctetStreamRoutesToPDF(t *testing.T) {
	_, fail := Extract([]byte{0x00, 0x01, 0x02}, "application/octet-stream")
	require.NotNil(t, fail)
	assert.Equal(t, FailureParseError, fail.Kind)
	assert.Contains(t, fail.Message, "PDF extraction failed")
}

func TestExtract_Docx(t *testing.T) {
	docx := buildDocx(t, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+
		`<w:p><w:r><w:t>This policy applies to all authorized retailers.</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>First violation: warning.</w:t><w:t> Second: 90-day cutoff.</w:t></w:r></w:p>`+
		`</w:body></w:document>`)

	text, fail := Extract(docx, docxMIME)
	require.Nil(t, fail)
	assert.Contains(t, text, "This policy applies to all authorized retailers.")
	assert.Contains(t, text, "First violation: warning. Second: 90-day cutoff.")
	assert.Contains(t, text, "\n")
}

func TestExtract_Docx_Empty(t *testing.T) {
	docx := buildDocx(t, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p></w:p></w:body></w:document>`)

	_, fail := Extract(docx, docxMIME)
	require.NotNil(t, fail)
	assert.Equal(t, FailureNoText, fail.Kind)
	assert.Equal(t, "No text could be extracted from the document.", fail.Message)
}

func TestExtract_LegacyDocNotZip(t *testing.T) {
	// Old binary .doc files are not zip containers.
	_, fail := Extract([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, "application/msword")
	require.NotNil(t, fail)
	assert.Equal(t, FailureParseError, fail.Kind)
	assert.True(t, strings.HasPrefix(fail.Message, "Document extraction failed: "))
}

func TestExtract_Docx_MissingDocumentPart(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<w:styles/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, fail := Extract(buf.Bytes(), docxMIME)
	require.NotNil(t, fail)
	assert.Equal(t, FailureParseError, fail.Kind)
	assert.Contains(t, fail.Message, "missing word/document.xml")
}
