// Package repository is what the UI layer calls. There is one repository
// per entity type; each combines the collection client, a memoized
// snapshot of its collection and the entity's mapping table.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/heron/internal/bus"
	"github.com/opensource-finance/heron/internal/cache"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/listclient"
	"github.com/opensource-finance/heron/internal/metrics"
	"github.com/opensource-finance/heron/internal/normalize"
)

// DefaultCacheDuration is how long a collection snapshot is served.
const DefaultCacheDuration = 5 * time.Minute

// Event actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Option configures a repository.
type Option func(*options)

type options struct {
	duration time.Duration
	mirror   domain.Cache
	events   domain.EventBus
	scope    string
	metrics  *metrics.Metrics
	now      func() time.Time
}

// WithCacheDuration sets the snapshot freshness window.
func WithCacheDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.duration = d
		}
	}
}

// WithMirror shares snapshots through a second-tier cache.
func WithMirror(c domain.Cache) Option {
	return func(o *options) { o.mirror = c }
}

// WithEventBus publishes item events after writes.
func WithEventBus(b domain.EventBus) Option {
	return func(o *options) { o.events = b }
}

// WithScope overrides the workspace scope used for the bus and mirror.
func WithScope(scope string) Option {
	return func(o *options) { o.scope = scope }
}

// WithMetrics records cache lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces the memo clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Outcome is the result of a repository write. Item holds the entity as
// read back from the store when Success is true.
type Outcome[E any] struct {
	Success    bool              `json:"success"`
	Item       E                 `json:"item"`
	Error      string            `json:"error,omitempty"`
	Confidence domain.Confidence `json:"confidence,omitempty"`
}

func failed[E any](msg string) Outcome[E] {
	return Outcome[E]{Success: false, Error: msg}
}

// Revision is one stored version of an entity.
type Revision[E any] struct {
	Label    string         `json:"label"`
	Modified normalize.Date `json:"modified"`
	EditorID int            `json:"editorId,omitempty"`
	Item     E              `json:"item"`
}

func revision[E any](r domain.Record, item E) Revision[E] {
	return Revision[E]{
		Label:    r.String("VersionLabel"),
		Modified: normalize.DateOf(r["Modified"]),
		EditorID: domain.PositiveInt(r["EditorId"]),
		Item:     item,
	}
}

// collection is the plumbing every repository shares.
type collection struct {
	ref      domain.CollectionRef
	itemType string
	client   *listclient.Client
	memo     *cache.Memo[[]domain.Record]
	read     domain.ReadOptions
	events   domain.EventBus
	scope    string
}

func newCollection(client *listclient.Client, ref domain.CollectionRef, itemType string, read domain.ReadOptions, opts []Option) (*collection, error) {
	if client == nil {
		return nil, domain.ErrContextRequired
	}

	o := options{duration: DefaultCacheDuration}
	for _, opt := range opts {
		opt(&o)
	}
	if o.scope == "" {
		o.scope = bus.ScopeFor(client.Caller().WorkspaceURL())
	}

	var memoOpts []cache.MemoOption
	if o.now != nil {
		memoOpts = append(memoOpts, cache.WithClock(o.now))
	}
	if o.mirror != nil {
		memoOpts = append(memoOpts, cache.WithMirror(o.mirror, o.scope))
	}
	if o.metrics != nil {
		m := o.metrics
		memoOpts = append(memoOpts, cache.WithObserver(func(result string) {
			m.ObserveCache(string(ref), result)
		}))
	}

	return &collection{
		ref:      ref,
		itemType: itemType,
		client:   client,
		memo:     cache.NewMemo[[]domain.Record](string(ref), o.duration, memoOpts...),
		read:     read,
		events:   o.events,
		scope:    o.scope,
	}, nil
}

// Collection returns the logical collection the repository serves.
func (c *collection) Collection() domain.CollectionRef { return c.ref }

// Invalidate drops the cached snapshot.
func (c *collection) Invalidate(ctx context.Context) { c.memo.Invalidate(ctx) }

// records returns the collection snapshot, from the memo when useCache
// is set and the snapshot is fresh.
func (c *collection) records(ctx context.Context, useCache bool) ([]domain.Record, error) {
	return c.memo.Get(ctx, useCache, func(ctx context.Context) ([]domain.Record, error) {
		return c.client.FetchAll(ctx, c.ref, domain.Query{
			Select: c.read.Select,
			Expand: c.read.Expand,
			Top:    domain.MaxPageSize,
		})
	})
}

// query reads matching rows straight from the store.
func (c *collection) query(ctx context.Context, filter string) ([]domain.Record, error) {
	return c.client.FetchAll(ctx, c.ref, domain.Query{
		Select: c.read.Select,
		Expand: c.read.Expand,
		Filter: filter,
		Top:    domain.MaxPageSize,
	})
}

func idFilter(id int) string {
	return fmt.Sprintf("Id eq %d", id)
}

func textFilter(field, value string) string {
	return field + " eq '" + strings.ReplaceAll(value, "'", "''") + "'"
}

// changed invalidates the snapshot and announces the write.
func (c *collection) changed(ctx context.Context, action, itemID, title string, recipients []domain.PersonRef, item any) {
	c.memo.Invalidate(ctx)
	if c.events == nil {
		return
	}

	cc := c.client.Caller()
	event := domain.ItemEvent{
		Collection: c.ref,
		ItemType:   c.itemType,
		Action:     action,
		ItemID:     itemID,
		Title:      title,
		Recipients: recipients,
		Actor:      cc.CurrentUser(),
		Item:       item,
		Workspace:  cc.WorkspaceURL(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("item event not encoded", "collection", c.ref, "error", err)
		return
	}

	topic := domain.TopicItemSaved
	if action == ActionDeleted {
		topic = domain.TopicItemDeleted
	}
	if err := c.events.Publish(ctx, c.scope, topic, payload); err != nil {
		slog.Warn("item event not published",
			"collection", c.ref,
			"item_id", itemID,
			"error", err,
		)
	}
}

// recipients flattens person fields into a distinct list.
func recipients(groups ...normalize.People) []domain.PersonRef {
	seen := map[string]bool{}
	var out []domain.PersonRef
	for _, group := range groups {
		for _, p := range group {
			key := strings.ToLower(p.Email)
			if p.ID > 0 {
				key = fmt.Sprintf("#%d", p.ID)
			}
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out
}
