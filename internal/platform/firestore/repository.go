package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/pagination"
)

// ParentPlaceholder marks the parent document id inside a subcollection path such as
// "customers/{parent}/addresses".
const ParentPlaceholder = "{parent}"

// Document is a decoded snapshot with its id and timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository provides typed access to one collection. T is the Firestore document struct.
type BaseRepository[T any] struct {
	provider *Provider
	path     string
}

// NewBaseRepository binds a repository to a collection path.
func NewBaseRepository[T any](provider *Provider, path string) *BaseRepository[T] {
	return &BaseRepository[T]{provider: provider, path: strings.Trim(strings.TrimSpace(path), "/")}
}

// Scoped resolves the parent placeholder for subcollections.
func (r *BaseRepository[T]) Scoped(parentID string) *BaseRepository[T] {
	return &BaseRepository[T]{provider: r.provider, path: strings.Replace(r.path, ParentPlaceholder, parentID, 1)}
}

// Get fetches the document by id.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return decode[T](snap)
}

// GetTx fetches the document within a transaction.
func (r *BaseRepository[T]) GetTx(ctx context.Context, tx *firestore.Transaction, id string) (Document[T], error) {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return decode[T](snap)
}

// Set upserts the document.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T) error {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, value); err != nil {
		return WrapError(r.op("set"), err)
	}
	return nil
}

// Create writes the document and fails with a conflict when it already exists.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, value); err != nil {
		return WrapError(r.op("create"), err)
	}
	return nil
}

// Delete removes the document. Deleting a missing document is not an error.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return WrapError(r.op("delete"), err)
	}
	return nil
}

// Query executes a collection query and returns the decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.CollectionRef(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	return r.collect(ctx, query.Documents(ctx))
}

// Page runs an ordered query using cursor pagination. orderField must be a field whose value is
// stored on every document; the document id breaks ties.
func (r *BaseRepository[T]) Page(ctx context.Context, build QueryBuilder, orderField string, dir firestore.Direction, page domain.Pagination) ([]Document[T], string, error) {
	coll, err := r.CollectionRef(ctx)
	if err != nil {
		return nil, "", err
	}
	page = pagination.Normalize(page)
	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return nil, "", err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}
	query = query.OrderBy(orderField, dir).OrderBy(firestore.DocumentID, dir)
	if cursor.ID != "" {
		query = query.StartAfter(cursorValue(cursor.Value), coll.Doc(cursor.ID))
	}
	query = query.Limit(page.PageSize + 1)

	docs, err := r.collect(ctx, query.Documents(ctx))
	if err != nil {
		return nil, "", err
	}
	if len(docs) <= page.PageSize {
		return docs, "", nil
	}
	docs = docs[:page.PageSize]
	last := docs[len(docs)-1]

	snap, err := coll.Doc(last.ID).Get(ctx)
	if err != nil {
		return nil, "", WrapError(r.op("page"), err)
	}
	value, err := snap.DataAt(orderField)
	if err != nil {
		return nil, "", fmt.Errorf("firestore: read cursor field %s: %w", orderField, err)
	}
	if ts, ok := value.(time.Time); ok {
		value = ts.UTC().Format(time.RFC3339Nano)
	}
	next, err := pagination.EncodeToken(pagination.Cursor{Value: value, ID: last.ID})
	if err != nil {
		return nil, "", err
	}
	return docs, next, nil
}

// CollectionRef returns the resolved collection reference.
func (r *BaseRepository[T]) CollectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	if r.path == "" || strings.Contains(r.path, ParentPlaceholder) {
		return nil, WrapError(r.op("collection"), fmt.Errorf("firestore: unresolved collection path %q", r.path))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.path), nil
}

// DocumentRef exposes the document reference for transactional writes.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.CollectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) collect(ctx context.Context, iter *firestore.DocumentIterator) ([]Document[T], error) {
	defer iter.Stop()
	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		doc, err := decode[T](snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

func (r *BaseRepository[T]) op(action string) string {
	return r.path + "." + action
}

func decode[T any](snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s: %w", snap.Ref.Path, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, CreateTime: snap.CreateTime, UpdateTime: snap.UpdateTime}, nil
}

// cursorValue turns RFC3339 strings back into timestamps so they compare against timestamp fields.
func cursorValue(v any) any {
	if s, ok := v.(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts
		}
	}
	return v
}
