package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/Lllllllleong/documentsummaryflow/internal/gcp"
	"github.com/Lllllllleong/documentsummaryflow/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultRelayTimeout bounds the wait on the processing service.
	DefaultRelayTimeout = 9 * time.Minute
	// DefaultMaxUploadBytes caps a whole request: ten 5MB files plus form fields.
	DefaultMaxUploadBytes = 64 << 20

	requestIDHeader = "X-Request-ID"
	formMemory      = 32 << 20
)

// RelayConfig holds configuration for the upload relay.
type RelayConfig struct {
	CloudFunctionURL string
	Timeout          time.Duration
	MaxUploadBytes   int64
}

// LoadRelayConfig reads the relay configuration from the environment. A missing
// CLOUD_FUNCTION_URL is not an error here: the handler reports it per request.
func LoadRelayConfig() (RelayConfig, error) {
	timeout, err := gcp.GetEnvDuration("RELAY_TIMEOUT", DefaultRelayTimeout)
	if err != nil {
		return RelayConfig{}, err
	}
	maxBytes, err := gcp.GetEnvInt("RELAY_MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)
	if err != nil {
		return RelayConfig{}, err
	}
	return RelayConfig{
		CloudFunctionURL: gcp.GetEnv("CLOUD_FUNCTION_URL", ""),
		Timeout:          timeout,
		MaxUploadBytes:   int64(maxBytes),
	}, nil
}

// RelayFunction forwards upload forms to the processing service. It keeps no
// state between invocations.
type RelayFunction struct {
	httpClient *http.Client
	config     RelayConfig
}

// NewRelay creates a relay. A nil client means http.DefaultClient.
func NewRelay(config RelayConfig, httpClient *http.Client) *RelayFunction {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRelayTimeout
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &RelayFunction{httpClient: httpClient, config: config}
}

// ServeHTTP handles POST /api/upload. Only a form without files is answered
// with 400; every other failure of the relay itself is a 500.
func (f *RelayFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)
	logCtx := slog.With("requestId", requestID, "method", r.Method)

	if f.config.CloudFunctionURL == "" {
		f.fail(w, logCtx, http.StatusInternalServerError, "Server configuration error", errors.New("CLOUD_FUNCTION_URL is not set"))
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, fmt.Sprintf("Method %s Not Allowed", r.Method), http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, f.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		f.fail(w, logCtx, http.StatusInternalServerError, "File upload failed", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	fileHeaders := r.MultipartForm.File[models.FieldFiles]
	if len(fileHeaders) == 0 {
		f.fail(w, logCtx, http.StatusBadRequest, "No files uploaded", nil)
		return
	}
	if len(fileHeaders) > models.MaxFiles {
		// Exceeding the file limit is a form parsing failure, not a client error.
		f.fail(w, logCtx, http.StatusInternalServerError, "File upload failed", fmt.Errorf("%d files, limit is %d", len(fileHeaders), models.MaxFiles))
		return
	}

	logCtx = logCtx.With("fileCount", len(fileHeaders), "script", r.MultipartForm.Value[models.FieldScript])
	logCtx.Info("Relaying upload to processing service.")

	status, header, body, err := f.forward(r.Context(), requestID, fileHeaders, forwardedFields(r.MultipartForm))
	if err != nil {
		f.fail(w, logCtx, http.StatusInternalServerError, "File upload to Cloud Function failed", err)
		return
	}

	logCtx.Info("Processing service responded.", "status", status)
	if ct := header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logCtx.Error("Failed to write response", "error", err)
	}
}

// forward streams a freshly encoded form to the processing service and returns
// its complete response. The response body is read in full so a failure half way
// through becomes a relay failure instead of a truncated passthrough.
func (f *RelayFunction) forward(ctx context.Context, requestID string, files []*multipart.FileHeader, fields []models.FormField) (int, http.Header, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	parts := make([]formFile, 0, len(files))
	for _, fh := range files {
		fh := fh
		parts = append(parts, formFile{
			filename:    fh.Filename,
			contentType: fh.Header.Get("Content-Type"),
			open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := writeMultipart(mw, parts, fields)
		pw.CloseWithError(err)
		return err
	})

	req, err := http.NewRequestWithContext(gctx, http.MethodPost, f.config.CloudFunctionURL, pr)
	if err != nil {
		pr.CloseWithError(err)
		_ = eg.Wait()
		return 0, nil, nil, fmt.Errorf("failed to build outbound request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(requestIDHeader, requestID)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		if werr := eg.Wait(); werr != nil && !errors.Is(werr, io.ErrClosedPipe) && !errors.Is(werr, err) {
			return 0, nil, nil, fmt.Errorf("outbound request failed: %w (body: %v)", err, werr)
		}
		return 0, nil, nil, fmt.Errorf("outbound request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		pr.CloseWithError(err)
		_ = eg.Wait()
		return 0, nil, nil, fmt.Errorf("failed to read processing service response: %w", err)
	}

	// The service may answer before consuming the whole body; unblock the writer.
	_ = pr.Close()
	if werr := eg.Wait(); werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
		slog.Warn("Outbound body was not fully written", "requestId", requestID, "error", werr)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// forwardedFields copies the non-empty plain fields of the incoming form.
func forwardedFields(form *multipart.Form) []models.FormField {
	var fields []models.FormField
	for _, name := range models.ForwardedFields {
		values := form.Value[name]
		if len(values) == 0 || values[0] == "" {
			continue
		}
		fields = append(fields, models.FormField{Name: name, Value: values[0]})
	}
	return fields
}

func (f *RelayFunction) fail(w http.ResponseWriter, logCtx *slog.Logger, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		logCtx.Error(message, "status", status, "error", err)
	} else {
		logCtx.Warn(message, "status", status, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(models.ErrorResponse{Error: message}); encErr != nil {
		logCtx.Error("Failed to write error response", "error", encErr)
	}
}
