package models

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Mode is the summarization granularity requested from the processing service.
type Mode string

const (
	ModeBrief         Mode = "brief"
	ModeDetailed      Mode = "detailed"
	ModeComprehensive Mode = "comprehensive"
	ModeTimeline      Mode = "timeline"
)

// MaxFiles mirrors the processing service's per-request file limit.
const MaxFiles = 10

// modeScripts maps each mode to the script name the processing service expects
// in the "script" form field.
var modeScripts = map[Mode]string{
	ModeBrief:         "process-brief.py",
	ModeDetailed:      "process-detailed.py",
	ModeComprehensive: "process-comprehensive.py",
	ModeTimeline:      "timelines.py",
}

// Script returns the wire value for the mode.
func (m Mode) Script() string {
	return modeScripts[m]
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	_, ok := modeScripts[m]
	return ok
}

// ParseMode accepts either a mode name ("brief") or its script name ("process-brief.py").
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if m := Mode(s); m.Valid() {
		return m, nil
	}
	for m, script := range modeScripts {
		if script == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// AllowedExtensions are the file types the upload form accepts.
var AllowedExtensions = []string{".pdf", ".jpeg", ".jpg", ".png"}

// AllowedFile reports whether the filename carries an accepted extension.
func AllowedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail applies the notification address pattern. The address is lowercased
// first, matching the upload form.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.ToLower(email))
}

// FileUpload is one file selected for submission.
type FileUpload struct {
	Name      string
	Data      []byte
	PageCount int // 0 for images or when unknown
}

// Submission is everything the processing service needs for one job.
type Submission struct {
	Files       []FileUpload
	Mode        Mode
	Model       string
	Template    string
	Notify      bool
	NotifyEmail string
}

// Validate checks the client-side constraints of a submission.
func (s *Submission) Validate() error {
	if len(s.Files) == 0 {
		return ErrNoFiles
	}
	if len(s.Files) > MaxFiles {
		return fmt.Errorf("%w: %d files, limit is %d", ErrTooManyFiles, len(s.Files), MaxFiles)
	}
	for _, f := range s.Files {
		if !AllowedFile(f.Name) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFile, f.Name)
		}
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, s.Mode)
	}
	if strings.TrimSpace(s.Model) == "" {
		return ErrMissingModel
	}
	if strings.TrimSpace(s.Template) == "" {
		return ErrEmptyTemplate
	}
	if s.Notify && !ValidEmail(strings.TrimSpace(s.NotifyEmail)) {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, s.NotifyEmail)
	}
	return nil
}

// Fields returns the non-file form fields in the order the relay forwards them.
func (s *Submission) Fields() []FormField {
	return []FormField{
		{Name: FieldScript, Value: s.Mode.Script()},
		{Name: FieldModel, Value: s.Model},
		{Name: FieldCustomTemplate, Value: s.Template},
		{Name: FieldSendEmail, Value: fmt.Sprintf("%t", s.Notify)},
		{Name: FieldUserEmail, Value: s.NotifyEmail},
	}
}

// JobHandle correlates a submission with the records the processing service
// eventually writes.
type JobHandle struct {
	ID string
}
