package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/documentsummaryflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

// DefaultModel is the model preselected for new submissions.
const DefaultModel = "claude-3-haiku-20240307"

// DefaultTemplate is the prompt template used when the user gives no description.
const DefaultTemplate = `The default template is below. To replace the default template with your own, remove the text below.
---------------------------------------------------------------------------
1. Extract all important details from the current page, including but not limited to:

- Individuals mentioned, including their full names, roles, badge numbers, and specific actions

- Allegations, charges, and/or rule violations, providing case numbers and exact dates when available

- Main events, actions, and/or observations described, including precise dates and locations when provided

- Relevant evidence or findings presented

- Legal proceedings, motions, disciplinary actions, or investigation outcomes, including specific dates, case law citations, and arguments made by involved parties

- Include all relevant details from the current page, even if they do not fall under the categories of key information outlined in the guidelines.
`

// validationWorkers limits concurrent PDF validation.
const validationWorkers = 4

// Collector gathers the pieces of a submission. Nothing is sent until Build is
// called on explicit confirmation.
type Collector struct {
	files       []models.FileUpload
	description string
	template    string
	mode        models.Mode
	model       string
	notify      bool
	notifyEmail string
}

// NewCollector returns a collector with the default mode, model and template.
func NewCollector() *Collector {
	c := &Collector{}
	c.Reset()
	return c
}

// Reset restores every default and drops the file selection.
func (c *Collector) Reset() {
	c.files = nil
	c.description = ""
	c.template = DefaultTemplate
	c.mode = models.ModeBrief
	c.model = DefaultModel
	c.notify = false
	c.notifyEmail = ""
}

// LoadFiles reads and checks the files at paths. PDFs are parsed so corrupt
// documents are rejected before anything is uploaded.
func LoadFiles(ctx context.Context, paths []string) ([]models.FileUpload, error) {
	if len(paths) == 0 {
		return nil, models.ErrNoFiles
	}
	if len(paths) > models.MaxFiles {
		return nil, fmt.Errorf("%w: %d files, limit is %d", models.ErrTooManyFiles, len(paths), models.MaxFiles)
	}
	for _, p := range paths {
		if !models.AllowedFile(p) {
			return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFile, filepath.Base(p))
		}
	}

	uploads := make([]models.FileUpload, len(paths))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(validationWorkers)
	for i, p := range paths {
		i, p := i, p
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			upload, err := loadFile(p)
			if err != nil {
				return err
			}
			uploads[i] = upload
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return uploads, nil
}

func loadFile(path string) (models.FileUpload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.FileUpload{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	upload := models.FileUpload{Name: filepath.Base(path), Data: data}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		pages, err := pdfPageCount(data)
		if err != nil {
			return models.FileUpload{}, fmt.Errorf("%w: %s: %v", models.ErrCorruptFile, upload.Name, err)
		}
		upload.PageCount = pages
	}
	return upload, nil
}

// pdfPageCount validates the document in relaxed mode and returns its page count.
func pdfPageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}

// SetFiles replaces the file selection.
func (c *Collector) SetFiles(files []models.FileUpload) {
	c.files = files
}

// Files returns the current selection.
func (c *Collector) Files() []models.FileUpload {
	return c.files
}

// SetDescription prepends a non-empty description to the default template. An
// empty description restores the default template.
func (c *Collector) SetDescription(description string) {
	c.description = description
	if description == "" {
		c.template = DefaultTemplate
		return
	}
	c.template = description + "\n\n" + strings.TrimSpace(DefaultTemplate)
}

// SetTemplate replaces the prompt template outright.
func (c *Collector) SetTemplate(template string) {
	c.template = template
}

// Template returns the active prompt template.
func (c *Collector) Template() string {
	return c.template
}

func (c *Collector) SetMode(mode models.Mode) {
	c.mode = mode
}

func (c *Collector) Mode() models.Mode {
	return c.mode
}

func (c *Collector) SetModel(model string) {
	c.model = model
}

// SetNotify sets the email notification preference.
func (c *Collector) SetNotify(notify bool, email string) {
	c.notify = notify
	c.notifyEmail = email
}

func (c *Collector) submission() *models.Submission {
	return &models.Submission{
		Files:       c.files,
		Mode:        c.mode,
		Model:       c.model,
		Template:    c.template,
		Notify:      c.notify,
		NotifyEmail: strings.TrimSpace(c.notifyEmail),
	}
}

// CanSubmit reports whether the confirm action should be enabled.
func (c *Collector) CanSubmit() bool {
	return c.submission().Validate() == nil
}

// Build assembles and validates the submission.
func (c *Collector) Build() (*models.Submission, error) {
	sub := c.submission()
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	return sub, nil
}
