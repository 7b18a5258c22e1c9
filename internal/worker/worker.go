// Package worker turns saved-item events into notification trigger rows.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/heron/internal/bus"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/listclient"
	"github.com/opensource-finance/heron/internal/normalize"
	"github.com/opensource-finance/heron/internal/session"
)

// Worker writes one trigger row per saved item. The row goes through the
// session's client, so it lands wherever the router places the trigger
// collection.
type Worker struct {
	bus        domain.EventBus
	collection domain.CollectionRef
	now        func() time.Time

	mu            sync.Mutex
	subscriptions []domain.Subscription
	watched       map[string]bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Collection receives the trigger rows. Empty selects Email Triggers.
	Collection domain.CollectionRef

	// Now stamps TriggeredAt. Nil uses time.Now.
	Now func() time.Time
}

// NewWorker creates a worker on b.
func NewWorker(b domain.EventBus, cfg Config) *Worker {
	if cfg.Collection == "" {
		cfg.Collection = domain.CollectionEmailTriggers
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        b,
		collection: cfg.Collection,
		now:        cfg.Now,
		watched:    make(map[string]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Watch subscribes to the saved-item events of a session's workspace.
// Watching the same workspace twice is a no-op.
func (w *Worker) Watch(s *session.Session) error {
	scope := bus.ScopeFor(s.Workspace())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return errors.New("worker stopped")
	}
	if w.watched[scope] {
		return nil
	}

	client := s.Client
	sub, err := w.bus.Subscribe(w.ctx, scope, domain.TopicItemSaved, func(ctx context.Context, msg *domain.Message) error {
		return w.trigger(ctx, client, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)
	w.watched[scope] = true

	slog.Info("notification worker watching workspace",
		"workspace", s.Workspace(),
		"topic", domain.TopicItemSaved,
	)
	return nil
}

// savedEvent keeps the item as raw JSON so it is stored unchanged.
type savedEvent struct {
	domain.ItemEvent
	Item json.RawMessage `json:"item,omitempty"`
}

// TriggerRecord builds the trigger row for one event.
func TriggerRecord(event domain.ItemEvent, payload []byte, at time.Time) domain.Record {
	row := domain.Record{
		"Title":       event.Title,
		"ItemType":    event.ItemType,
		"ItemId":      event.ItemID,
		"Action":      event.Action,
		"Payload":     string(payload),
		"TriggeredAt": at.UTC().Format(normalize.ISOLayout),
	}
	if ids := recipientIdentifiers(event.Recipients); len(ids) > 0 {
		row["RecipientsId"] = domain.PersonValue{IDs: ids, Multi: true}
	}
	return row
}

// recipientIdentifiers prefers emails, since user ids are only valid on the
// site that issued them and the trigger row may live elsewhere.
func recipientIdentifiers(people []domain.PersonRef) []any {
	ids := make([]any, 0, len(people))
	for _, p := range people {
		switch {
		case p.Email != "":
			ids = append(ids, p.Email)
		case p.ID > 0:
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (w *Worker) trigger(ctx context.Context, client *listclient.Client, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()
	start := time.Now()

	var event savedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse item event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	payload := []byte(event.Item)
	if len(payload) == 0 {
		payload = []byte("null")
	}
	res, err := client.Create(ctx, w.collection, TriggerRecord(event.ItemEvent, payload, w.now()), domain.ReadOptions{})
	if err == nil && !res.Success {
		err = errors.New(res.Error)
	}
	if err != nil {
		slog.Error("failed to write notification trigger",
			"item_type", event.ItemType,
			"item_id", event.ItemID,
			"error", err,
		)
		return fmt.Errorf("trigger for %s %s: %w", event.ItemType, event.ItemID, err)
	}

	slog.Info("notification trigger written",
		"item_type", event.ItemType,
		"item_id", event.ItemID,
		"action", event.Action,
		"recipients", len(event.Recipients),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops all subscriptions.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("notification worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
