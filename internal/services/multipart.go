package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/Lllllllleong/documentsummaryflow/internal/models"
)

// formFile is a file part waiting to be written. open is called once, when the
// part is written, so large uploads are streamed rather than buffered twice.
type formFile struct {
	filename    string
	contentType string
	open        func() (io.ReadCloser, error)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeMultipart writes every file under the "files" field followed by the
// given plain fields, then closes the writer.
func writeMultipart(mw *multipart.Writer, files []formFile, fields []models.FormField) error {
	for _, file := range files {
		if err := writeFilePart(mw, file); err != nil {
			return err
		}
	}
	for _, field := range fields {
		if err := mw.WriteField(field.Name, field.Value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", field.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to close multipart body: %w", err)
	}
	return nil
}

func writeFilePart(mw *multipart.Writer, file formFile) error {
	contentType := file.contentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		models.FieldFiles, quoteEscaper.Replace(file.filename)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create part for %s: %w", file.filename, err)
	}
	src, err := file.open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file.filename, err)
	}
	defer src.Close()
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to copy %s: %w", file.filename, err)
	}
	return nil
}
