package models

// These define the multipart form shared by the upload client, the relay and
// the processing service, and the JSON bodies the relay returns.

// Form field names.
const (
	FieldFiles          = "files"
	FieldScript         = "script"
	FieldModel          = "model"
	FieldCustomTemplate = "custom_template"
	FieldSendEmail      = "send_email"
	FieldUserEmail      = "user_email"
)

// ForwardedFields lists the non-file fields the relay re-encodes, in order.
var ForwardedFields = []string{
	FieldScript,
	FieldModel,
	FieldCustomTemplate,
	FieldSendEmail,
	FieldUserEmail,
}

// FormField is a single non-file multipart field.
type FormField struct {
	Name  string
	Value string
}

// UploadResponse is the part of the processing service's reply the client relies on.
type UploadResponse struct {
	UniqueID string `json:"uniqueId"`
}

// ErrorResponse is the JSON body of every error the relay produces itself.
type ErrorResponse struct {
	Error string `json:"error"`
}
