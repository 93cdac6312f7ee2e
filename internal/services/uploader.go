package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/documentsummaryflow/internal/models"
)

// UploadClient submits forms to the relay endpoint.
type UploadClient struct {
	httpClient *http.Client
	endpoint   string
	timeout    time.Duration
}

// NewUploadClient creates a client for the relay at endpoint. A zero timeout
// means DefaultRelayTimeout.
func NewUploadClient(endpoint string, timeout time.Duration, httpClient *http.Client) *UploadClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	return &UploadClient{httpClient: httpClient, endpoint: endpoint, timeout: timeout}
}

// Submit posts the submission and returns the job handle from the response.
// Any failure, including a non-2xx status, wraps models.ErrUploadFailed.
func (c *UploadClient) Submit(ctx context.Context, sub *models.Submission) (models.JobHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	files := make([]formFile, 0, len(sub.Files))
	for _, f := range sub.Files {
		data := f.Data
		files = append(files, formFile{
			filename:    f.Name,
			contentType: mime.TypeByExtension(filepath.Ext(f.Name)),
			open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		})
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := writeMultipart(mw, files, sub.Fields()); err != nil {
		return models.JobHandle{}, fmt.Errorf("%w: %v", models.ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return models.JobHandle{}, fmt.Errorf("%w: %v", models.ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	slog.Info("Submitting upload.", "endpoint", c.endpoint, "fileCount", len(sub.Files), "mode", sub.Mode)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.JobHandle{}, fmt.Errorf("%w: %v", models.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.JobHandle{}, fmt.Errorf("%w: status %d", models.ErrUploadFailed, resp.StatusCode)
	}

	var out models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.JobHandle{}, fmt.Errorf("%w: could not decode response: %v", models.ErrUploadFailed, err)
	}
	if out.UniqueID == "" {
		return models.JobHandle{}, fmt.Errorf("%w: %w", models.ErrUploadFailed, models.ErrNoJobID)
	}
	return models.JobHandle{ID: out.UniqueID}, nil
}
