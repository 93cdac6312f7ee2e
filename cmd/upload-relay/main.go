package main

import (
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentsummaryflow/internal/gcp"
	"github.com/Lllllllleong/documentsummaryflow/internal/services"
)

var (
	relayInstance *services.RelayFunction
	once          sync.Once
	initErr       error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleUpload" is the entry point name configured in GCP.
	functions.HTTP("HandleUpload", handleUpload)
}

// main runs the function locally; on Cloud Functions the framework owns the server.
func main() {
	port := gcp.GetEnv("PORT", "8080")
	slog.Info("Starting upload relay locally.", "port", port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("Function framework exited", "error", err)
		os.Exit(1)
	}
}

// handleUpload is the HTTP handler for POST /api/upload.
func handleUpload(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var config services.RelayConfig
		config, initErr = services.LoadRelayConfig()
		if initErr == nil {
			relayInstance = services.NewRelay(config, &http.Client{})
		}
	})
	if initErr != nil {
		slog.Error("Critical: Relay initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	relayInstance.ServeHTTP(w, r)
}
