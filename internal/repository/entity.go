package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/listclient"
	"github.com/opensource-finance/heron/internal/mapping"
	"github.com/opensource-finance/heron/internal/normalize"
)

// codec adapts one entity type to the shared single-row repository.
type codec[E any] struct {
	itemType string
	read     domain.ReadOptions
	toWire   func(E) domain.Record
	fromWire func(domain.Record) E
	id       func(E) int
	title    func(E) string
	people   func(E) []normalize.People
}

// Repository serves an entity stored as one row per item.
type Repository[E any] struct {
	*collection
	codec codec[E]
}

// RCARepository serves the RCA register.
type RCARepository = Repository[mapping.RCAItem]

// KnowledgeRepository serves one knowledge collection.
type KnowledgeRepository = Repository[mapping.KnowledgeItem]

var rcaCodec = codec[mapping.RCAItem]{
	itemType: "RCA",
	read:     mapping.RCAReadOptions(),
	toWire:   mapping.RCAToWire,
	fromWire: mapping.RCAFromWire,
	id:       func(e mapping.RCAItem) int { return e.ID },
	title:    func(e mapping.RCAItem) string { return e.Title },
	people: func(e mapping.RCAItem) []normalize.People {
		groups := []normalize.People{e.Owner, e.ByWhom}
		for _, a := range e.Actions {
			groups = append(groups, a.Responsibility)
		}
		return groups
	},
}

// NewRCA returns the RCA repository of a session.
func NewRCA(client *listclient.Client, opts ...Option) (*RCARepository, error) {
	return newRepository(client, domain.CollectionRCA, rcaCodec, opts)
}

// KnowledgeKinds maps the URL kind of each knowledge collection.
var KnowledgeKinds = map[string]domain.CollectionRef{
	"lessons":        domain.CollectionLessons,
	"best-practices": domain.CollectionBestPractices,
	"components":     domain.CollectionReusableComponents,
}

var knowledgeTypes = map[domain.CollectionRef]string{
	domain.CollectionLessons:            "Lesson",
	domain.CollectionBestPractices:      "BestPractice",
	domain.CollectionReusableComponents: "ReusableComponent",
}

// NewKnowledge returns the repository of one knowledge collection.
func NewKnowledge(client *listclient.Client, ref domain.CollectionRef, opts ...Option) (*KnowledgeRepository, error) {
	itemType, ok := knowledgeTypes[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a knowledge collection", domain.ErrInvalidArgument, ref)
	}
	c := codec[mapping.KnowledgeItem]{
		itemType: itemType,
		read:     mapping.KnowledgeTable.ReadOptions(),
		toWire:   mapping.KnowledgeToWire,
		fromWire: mapping.KnowledgeFromWire,
		id:       func(e mapping.KnowledgeItem) int { return e.ID },
		title:    func(e mapping.KnowledgeItem) string { return e.Title },
		people: func(e mapping.KnowledgeItem) []normalize.People {
			return []normalize.People{e.SubmittedBy, e.Contributors}
		},
	}
	return newRepository(client, ref, c, opts)
}

func newRepository[E any](client *listclient.Client, ref domain.CollectionRef, c codec[E], opts []Option) (*Repository[E], error) {
	base, err := newCollection(client, ref, c.itemType, c.read, opts)
	if err != nil {
		return nil, err
	}
	return &Repository[E]{collection: base, codec: c}, nil
}

// List returns every item of the collection.
func (r *Repository[E]) List(ctx context.Context, useCache bool) ([]E, error) {
	rows, err := r.records(ctx, useCache)
	if err != nil {
		return nil, err
	}
	items := make([]E, 0, len(rows))
	for _, row := range rows {
		items = append(items, r.codec.fromWire(row))
	}
	return items, nil
}

// Get reads one item from the store.
func (r *Repository[E]) Get(ctx context.Context, id int) (E, error) {
	var zero E
	if id <= 0 {
		return zero, fmt.Errorf("%w: id must be positive", domain.ErrInvalidArgument)
	}
	rows, err := r.query(ctx, idFilter(id))
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("%w: %s item %d", domain.ErrNotFound, r.ref, id)
	}
	return r.codec.fromWire(rows[0]), nil
}

// Create stores a new item.
func (r *Repository[E]) Create(ctx context.Context, item E) (Outcome[E], error) {
	res, err := r.client.Create(ctx, r.ref, r.codec.toWire(item), r.read)
	if err != nil {
		return Outcome[E]{}, err
	}
	return r.saved(ctx, ActionCreated, res), nil
}

// Update writes item over its stored row. Text and bool fields are always
// sent, so blanks clear the stored values.
func (r *Repository[E]) Update(ctx context.Context, item E) (Outcome[E], error) {
	res, err := r.client.Update(ctx, r.ref, r.codec.id(item), r.codec.toWire(item), r.read)
	if err != nil {
		return Outcome[E]{}, err
	}
	return r.saved(ctx, ActionUpdated, res), nil
}

func (r *Repository[E]) saved(ctx context.Context, action string, res domain.Result) Outcome[E] {
	if !res.Success {
		return failed[E](res.Error)
	}
	row := res.Item
	if row == nil {
		row = domain.Record{"Id": res.ItemID}
	}
	item := r.codec.fromWire(row)
	r.changed(ctx, action, strconv.Itoa(res.ItemID), r.codec.title(item), recipients(r.codec.people(item)...), item)
	return Outcome[E]{Success: true, Item: item, Confidence: res.Confidence}
}

// Delete removes an item. The item is read first so the delete event can
// name it.
func (r *Repository[E]) Delete(ctx context.Context, id int) (Outcome[E], error) {
	if id <= 0 {
		return Outcome[E]{}, fmt.Errorf("%w: id must be positive", domain.ErrInvalidArgument)
	}
	item, err := r.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return Outcome[E]{}, err
	}
	if err != nil {
		return failed[E](err.Error()), nil
	}

	res, err := r.client.Delete(ctx, r.ref, id)
	if err != nil {
		return Outcome[E]{}, err
	}
	if !res.Success {
		return failed[E](res.Error), nil
	}
	r.changed(ctx, ActionDeleted, strconv.Itoa(id), r.codec.title(item), recipients(r.codec.people(item)...), item)
	return Outcome[E]{Success: true, Item: item, Confidence: domain.ConfidenceConfirmed}, nil
}

// History returns the stored versions of an item, newest first.
func (r *Repository[E]) History(ctx context.Context, id int) ([]Revision[E], error) {
	versions, err := r.client.VersionHistory(ctx, r.ref, id, r.read)
	if err != nil {
		return nil, err
	}
	out := make([]Revision[E], 0, len(versions))
	for _, v := range versions {
		out = append(out, revision(v, r.codec.fromWire(v)))
	}
	return out, nil
}
