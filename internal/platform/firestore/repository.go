package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document represents a strongly typed Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
	ReadTime   time.Time
}

// MutationResult captures the update timestamp returned by Firestore mutations.
type MutationResult struct {
	UpdateTime time.Time
}

// Encoder serialises the strongly typed entity prior to persistence.
type Encoder[T any] func(ctx context.Context, value T) (any, error)

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository provides typed helpers wrapping Firestore collection access.
// Every read and write joins the transaction on the context when one is open,
// which is how cart, order, and ledger writes stay atomic during checkout.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository constructs a BaseRepository bound to a collection. Nil
// codecs fall back to Firestore's native struct mapping.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	if encode == nil {
		encode = IdentityEncoder[T]()
	}
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		encode:     encode,
		decode:     decode,
	}
}

// Set upserts the given value under the provided document ID.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) (MutationResult, error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}

	payload, err := r.encode(ctx, value)
	if err != nil {
		return MutationResult{}, fmt.Errorf("firestore: encode document %s: %w", id, err)
	}

	if tx, ok := TxFromContext(ctx); ok {
		if err := tx.Set(doc, payload, opts...); err != nil {
			return MutationResult{}, WrapError(r.op("set"), err)
		}
		// Staged writes report no timestamp until the transaction commits.
		return MutationResult{}, nil
	}

	result, err := doc.Set(ctx, payload, opts...)
	if err != nil {
		return MutationResult{}, WrapError(r.op("set"), err)
	}
	return MutationResult{UpdateTime: result.UpdateTime}, nil
}

// Update applies partial updates to the document.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update, opts ...firestore.Precondition) (MutationResult, error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}

	if tx, ok := TxFromContext(ctx); ok {
		if err := tx.Update(doc, updates, opts...); err != nil {
			return MutationResult{}, WrapError(r.op("update"), err)
		}
		return MutationResult{}, nil
	}

	result, err := doc.Update(ctx, updates, opts...)
	if err != nil {
		return MutationResult{}, WrapError(r.op("update"), err)
	}
	return MutationResult{UpdateTime: result.UpdateTime}, nil
}

// Get fetches the document by ID and decodes it into the strongly typed entity.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}

	snapshot, err := r.fetch(ctx, doc)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.fromSnapshot(ctx, snapshot)
}

// fetch reads the snapshot through the context transaction when one is open so
// the read is serialised against the transaction's writes.
func (r *BaseRepository[T]) fetch(ctx context.Context, doc *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.Get(doc)
	}
	return doc.Get(ctx)
}

// Query executes a collection query and returns the decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	var iter *firestore.DocumentIterator
	if tx, ok := TxFromContext(ctx); ok {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		decoded, err := r.fromSnapshot(ctx, snapshot)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		docs = append(docs, decoded)
	}
}

// DocumentRef exposes the underlying document reference for advanced scenarios such as transactions.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	return r.documentRef(ctx, id)
}

func (r *BaseRepository[T]) fromSnapshot(ctx context.Context, snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(ctx, snapshot)
	if err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       entity,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
		ReadTime:   snapshot.ReadTime,
	}, nil
}

func (r *BaseRepository[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	switch {
	case r == nil || r.provider == nil:
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	case r.collection == "":
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) documentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return name + "." + strings.ToLower(action)
}

// IdentityEncoder returns an encoder that writes the value unchanged.
func IdentityEncoder[T any]() Encoder[T] {
	return func(_ context.Context, value T) (any, error) {
		return value, nil
	}
}

// StructDecoder populates the target struct using Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}
