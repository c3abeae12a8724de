package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const collectionName = "idempotency_keys"

// FirestoreStore persists keys in the idempotency_keys collection. Reservation runs in a transaction
// so two concurrent checkout starts with the same key cannot both win.
type FirestoreStore struct {
	provider *pfirestore.Provider
	repo     *pfirestore.BaseRepository[recordDoc]
}

// NewFirestoreStore constructs a Firestore backed store.
func NewFirestoreStore(provider *pfirestore.Provider) *FirestoreStore {
	return &FirestoreStore{
		provider: provider,
		repo:     pfirestore.NewBaseRepository[recordDoc](provider, collectionName),
	}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	var result Reservation
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.repo.DocumentRef(ctx, documentID(key))
		if err != nil {
			return err
		}
		doc, err := s.repo.GetTx(ctx, tx, ref.ID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if err == nil && !doc.Data.record().expired(now) {
			result, err = classify(doc.Data.record(), fingerprint)
			return err
		}
		record := pendingRecord(key, fingerprint, now, ttl)
		result = Reservation{State: ReservationStateNew, Record: record}
		return tx.Set(ref, toDoc(record))
	})
	return result, err
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.repo.DocumentRef(ctx, documentID(key))
		if err != nil {
			return err
		}
		record := pendingRecord(key, fingerprint, now, ttl)
		doc, err := s.repo.GetTx(ctx, tx, ref.ID)
		switch {
		case err == nil:
			if doc.Data.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			record = doc.Data.record()
		case !isNotFound(err):
			return err
		}
		return tx.Set(ref, toDoc(completeRecord(record, resp, now, ttl)))
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.repo.Delete(ctx, documentID(key))
}

// CleanupExpired deletes up to limit expired records in one batch.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.repo.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	writer := client.BulkWriter(ctx)
	for _, doc := range docs {
		ref, err := s.repo.DocumentRef(ctx, doc.ID)
		if err != nil {
			return 0, err
		}
		if _, err := writer.Delete(ref); err != nil {
			return 0, pfirestore.WrapError(collectionName+".cleanup", err)
		}
	}
	writer.End()
	return len(docs), nil
}

func isNotFound(err error) bool {
	var nf interface{ IsNotFound() bool }
	return errors.As(err, &nf) && nf.IsNotFound()
}

type recordDoc struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders"`
	ResponseBody    []byte              `firestore:"responseBody"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func toDoc(r Record) recordDoc {
	return recordDoc{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (d recordDoc) record() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
}
