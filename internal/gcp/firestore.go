package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
)

// DefaultResultsCollection is where the processing service writes one record per
// processed file.
const DefaultResultsCollection = "uploads"

// NewFirestoreClient opens the named database of projectID. An empty databaseID
// selects the project's default database. FIRESTORE_EMULATOR_HOST is honoured by
// the client library itself.
func NewFirestoreClient(ctx context.Context, projectID, databaseID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID must be set to read results from Firestore")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	if host := os.Getenv("FIRESTORE_EMULATOR_HOST"); host != "" {
		slog.Info("Using Firestore emulator.", "host", host)
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client for %s/%s: %w", projectID, databaseID, err)
	}
	return client, nil
}
