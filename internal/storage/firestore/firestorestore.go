// Package firestore provides a pool store implementation using Google Cloud Firestore.
//
// The whole pool lives in one document as an ordered array, so rotation order
// survives every save without a separate position field.
package firestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// recordDocument is the stored shape of one key record.
type recordDocument struct {
	Name                string     `firestore:"name"`
	Value               string     `firestore:"value"`
	Active              bool       `firestore:"active"`
	Current             bool       `firestore:"current"`
	Exhausted           bool       `firestore:"exhausted"`
	LastUsed            *time.Time `firestore:"lastUsed"`
	LastMarkedExhausted *time.Time `firestore:"lastMarkedExhausted"`
	Email               string     `firestore:"email,omitempty"`
	Password            string     `firestore:"password,omitempty"`
}

// poolDocument is the structure stored in the pool's Firestore document.
type poolDocument struct {
	Records   []recordDocument `firestore:"records"`
	UpdatedAt time.Time        `firestore:"updatedAt"`
}

// Store is a concrete implementation of the keypool.Store interface using Firestore.
type Store struct {
	client *firestore.Client
	doc    *firestore.DocumentRef
	logger *slog.Logger
}

// NewFirestoreStore creates a new Firestore-backed store for the document
// collectionName/documentID.
func NewFirestoreStore(client *firestore.Client, collectionName, documentID string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		doc:    client.Collection(collectionName).Doc(documentID),
		logger: logger.With("component", "firestore_store", "collection", collectionName, "document", documentID),
	}
}

// Load retrieves the pool document. A missing or unparseable document yields an empty pool.
func (s *Store) Load(ctx context.Context) (keypool.Pool, error) {
	s.logger.Debug("Getting key pool document")

	snap, err := s.doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			s.logger.Warn("Key pool document not found, starting with an empty pool")
			return keypool.Pool{}, nil
		}
		s.logger.Error("Failed to get key pool document", "err", err)
		return nil, fmt.Errorf("failed to get key pool document %s: %w", s.doc.Path, err)
	}

	var pd poolDocument
	if err := snap.DataTo(&pd); err != nil {
		s.logger.Warn("Failed to parse key pool document, starting with an empty pool", "err", err)
		return keypool.Pool{}, nil
	}

	pool := make(keypool.Pool, 0, len(pd.Records))
	for _, rd := range pd.Records {
		pool = append(pool, keypool.KeyRecord{
			Name:                rd.Name,
			Value:               rd.Value,
			Active:              rd.Active,
			Current:             rd.Current,
			Exhausted:           rd.Exhausted,
			LastUsed:            utc(rd.LastUsed),
			LastMarkedExhausted: utc(rd.LastMarkedExhausted),
			Email:               rd.Email,
			Password:            rd.Password,
		})
	}

	s.logger.Debug("Successfully retrieved key pool", "keys", len(pool))
	return pool, nil
}

// Save creates or overwrites the pool document.
func (s *Store) Save(ctx context.Context, pool keypool.Pool) error {
	pd := poolDocument{
		Records:   make([]recordDocument, 0, len(pool)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, r := range pool {
		pd.Records = append(pd.Records, recordDocument{
			Name:                r.Name,
			Value:               r.Value,
			Active:              r.Active,
			Current:             r.Current,
			Exhausted:           r.Exhausted,
			LastUsed:            r.LastUsed,
			LastMarkedExhausted: r.LastMarkedExhausted,
			Email:               r.Email,
			Password:            r.Password,
		})
	}

	s.logger.Debug("Storing key pool", "keys", len(pool))
	if _, err := s.doc.Set(ctx, pd); err != nil {
		s.logger.Error("Failed to store key pool", "err", err)
		return fmt.Errorf("failed to store key pool document %s: %w", s.doc.Path, err)
	}
	s.logger.Debug("Successfully stored key pool", "keys", len(pool))
	return nil
}

// Firestore returns timestamps in the local zone.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
