package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentsummaryflow/internal/gcp"
	"github.com/Lllllllleong/documentsummaryflow/internal/models"
	"google.golang.org/api/iterator"
)

// FirestoreStore reads upload records from a Firestore collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a store over collection, defaulting to "uploads".
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = gcp.DefaultResultsCollection
	}
	return &FirestoreStore{client: client, collection: collection}
}

// FindResults returns every record whose "id" field equals jobID.
func (s *FirestoreStore) FindResults(ctx context.Context, jobID string) ([]StoredRecord, error) {
	iter := s.client.Collection(s.collection).Where("id", "==", jobID).Documents(ctx)
	defer iter.Stop()

	var out []StoredRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s: %w", s.collection, err)
		}
		var rec models.UploadRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", doc.Ref.ID, err)
		}
		out = append(out, StoredRecord{DocumentID: doc.Ref.ID, Record: rec})
	}
	return out, nil
}

// Close releases the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
