package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dnjord/glasir-login/internal/crypto"
	"github.com/dnjord/glasir-login/internal/log"
	"github.com/dnjord/glasir-login/internal/session"
)

var _ Store = (*FirestoreStore)(nil)

// FirestoreStore persists session records in Google Cloud Firestore, one
// document per profile. The record is stored as an encrypted JSON blob so
// auth cookies never sit in Firestore in the clear.
//
// Error handling strategy:
// - Read operations: return errors (callers must know the record is missing)
// - Write operations: return errors too; the orchestrator treats a failed
//   persist as a failed acquisition rather than handing out an unsaved session
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	encryptor  crypto.Encryptor
	logger     *log.Logger
}

// FirestoreConfig configures the firestore backend.
type FirestoreConfig struct {
	ProjectID  string
	Database   string
	Collection string
}

// sessionDoc is the Firestore document shape for one profile's session.
type sessionDoc struct {
	Profile   string    `firestore:"profile"`
	Record    string    `firestore:"record"` // encrypted JSON
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestoreStore creates a Firestore-backed store.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig, encryptor crypto.Encryptor, logger *log.Logger) (*FirestoreStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "glasir_sessions"
	}

	var client *firestore.Client
	var err error
	if cfg.Database != "" && cfg.Database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.Database)
	} else {
		client, err = firestore.NewClient(ctx, cfg.ProjectID)
	}
	if err != nil {
		return nil, fmt.Errorf("creating Firestore client: %w", err)
	}

	return &FirestoreStore{
		client:     client,
		collection: collection,
		encryptor:  encryptor,
		logger:     logger,
	}, nil
}

func (s *FirestoreStore) Get(ctx context.Context, profile string) (*session.Record, error) {
	doc, err := s.client.Collection(s.collection).Doc(profile).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting session from Firestore: %w", err)
	}

	var d sessionDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("unmarshaling session document: %w", err)
	}

	plaintext, err := s.encryptor.Decrypt(d.Record)
	if err != nil {
		return nil, fmt.Errorf("decrypting session record: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal([]byte(plaintext), &rec); err != nil {
		return nil, fmt.Errorf("parsing session record: %w", err)
	}
	return &rec, nil
}

func (s *FirestoreStore) Put(ctx context.Context, profile string, rec *session.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}

	encrypted, err := s.encryptor.Encrypt(string(data))
	if err != nil {
		return fmt.Errorf("encrypting session record: %w", err)
	}

	doc := sessionDoc{
		Profile:   profile,
		Record:    encrypted,
		UpdatedAt: time.Now(),
	}
	if _, err := s.client.Collection(s.collection).Doc(profile).Set(ctx, doc); err != nil {
		return fmt.Errorf("storing session in Firestore: %w", err)
	}

	s.logger.Debug("session record stored in Firestore", "profile", profile, "collection", s.collection)
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, profile string) error {
	// Firestore deletes are idempotent and don't report missing docs, so
	// check existence first to honor the ErrNotFound contract.
	_, err := s.client.Collection(s.collection).Doc(profile).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking session in Firestore: %w", err)
	}

	if _, err := s.client.Collection(s.collection).Doc(profile).Delete(ctx); err != nil {
		return fmt.Errorf("deleting session from Firestore: %w", err)
	}
	s.logger.Info("session record deleted from Firestore", "profile", profile)
	return nil
}

func (s *FirestoreStore) Profiles(ctx context.Context) ([]string, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var profiles []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating session documents: %w", err)
		}
		profiles = append(profiles, doc.Ref.ID)
	}
	return profiles, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
