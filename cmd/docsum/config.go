package main

import (
	"time"

	"github.com/Lllllllleong/documentsummaryflow/internal/gcp"
	"github.com/Lllllllleong/documentsummaryflow/internal/services"
	"github.com/Lllllllleong/documentsummaryflow/internal/workspace"
)

// clientConfig holds configuration for the docsum CLI.
type clientConfig struct {
	RelayURL      string
	RelayTimeout  time.Duration
	ProjectID     string
	DatabaseID    string
	Collection    string
	Poll          services.PollerConfig
	WorkspacePath string
	MaxSnapshots  int
	ExportBucket  string
	ExportPrefix  string
	Verbose       bool
}

func loadConfig() (*clientConfig, error) {
	relayTimeout, err := gcp.GetEnvDuration("RELAY_TIMEOUT", services.DefaultRelayTimeout)
	if err != nil {
		return nil, err
	}
	poll, err := services.LoadPollerConfig()
	if err != nil {
		return nil, err
	}
	maxSnapshots, err := gcp.GetEnvInt("DOCSUM_MAX_SNAPSHOTS", workspace.DefaultMaxSnapshots)
	if err != nil {
		return nil, err
	}

	workspacePath := gcp.GetEnv("DOCSUM_WORKSPACE", "")
	if workspacePath == "" {
		if workspacePath, err = workspace.DefaultPath(); err != nil {
			return nil, err
		}
	}

	return &clientConfig{
		RelayURL:      gcp.GetEnv("DOCSUM_RELAY_URL", "http://localhost:8080/api/upload"),
		RelayTimeout:  relayTimeout,
		ProjectID:     gcp.GetEnv("PROJECT_ID", ""),
		DatabaseID:    gcp.GetEnv("FIRESTORE_DATABASE", ""),
		Collection:    gcp.GetEnv("FIRESTORE_COLLECTION", gcp.DefaultResultsCollection),
		Poll:          poll,
		WorkspacePath: workspacePath,
		MaxSnapshots:  maxSnapshots,
		ExportBucket:  gcp.GetEnv("SNAPSHOT_EXPORT_BUCKET", ""),
		ExportPrefix:  gcp.GetEnv("SNAPSHOT_EXPORT_PREFIX", "snapshots"),
		Verbose:       gcp.GetEnv("DOCSUM_VERBOSE", "") != "",
	}, nil
}
