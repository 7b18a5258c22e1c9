package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/heron/internal/bus"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/liststore"
	"github.com/opensource-finance/heron/internal/mapping"
	"github.com/opensource-finance/heron/internal/normalize"
	"github.com/opensource-finance/heron/internal/session"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type harness struct {
	store  *liststore.Store
	events *bus.ChannelBus
	worker *Worker
	pool   *session.Pool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "heron-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	store, err := liststore.New(domain.StoreConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	events := bus.NewChannelBus(100)
	t.Cleanup(func() { events.Close() })

	w := NewWorker(events, Config{Now: func() time.Time { return fixedNow }})
	t.Cleanup(func() { w.Stop() })

	pool, err := session.NewPool(domain.ClientConfig{
		WorkspaceURL: "https://example.com/sites/alpha",
		RootURL:      "https://example.com",
		UserEmail:    "pm@example.com",
		MaxAttempts:  1,
	}, session.StoreHandles(store),
		session.WithEventBus(events),
		session.OnSession(func(s *session.Session) {
			if err := w.Watch(s); err != nil {
				t.Errorf("Watch failed: %v", err)
			}
		}),
	)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return &harness{store: store, events: events, worker: w, pool: pool}
}

func (h *harness) triggers(t *testing.T, want int) []domain.Record {
	t.Helper()
	site := h.store.Site("https://example.com", domain.PersonRef{})
	deadline := time.Now().Add(2 * time.Second)
	for {
		rows, err := site.Items(context.Background(), domain.CollectionEmailTriggers, domain.Query{})
		if err != nil {
			t.Fatalf("Items failed: %v", err)
		}
		if len(rows) >= want || time.Now().After(deadline) {
			return rows
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkerWritesTriggers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.pool.Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}

	out, err := s.RAID.Create(ctx, mapping.RAIDItem{
		Title: "Vendor delay",
		Type:  mapping.RAIDIssue,
		Owner: normalize.People{{Email: "owner@example.com"}},
	})
	if err != nil || !out.Success {
		t.Fatalf("Create failed: %v %s", err, out.Error)
	}

	rows := h.triggers(t, 1)
	if len(rows) != 1 {
		t.Fatalf("expected 1 trigger row, got %d", len(rows))
	}
	row := rows[0]
	if row.String("Title") != "Vendor delay" || row.String("ItemType") != "RAID" || row.String("Action") != "created" {
		t.Errorf("unexpected trigger %+v", row)
	}
	if row.String("ItemId") != out.Item.RaidID {
		t.Errorf("expected ItemId %q, got %v", out.Item.RaidID, row["ItemId"])
	}
	if row.String("TriggeredAt") != "2026-03-01T09:30:00.000Z" {
		t.Errorf("unexpected TriggeredAt %v", row["TriggeredAt"])
	}
	owner, err := h.store.Site("https://example.com", domain.PersonRef{}).EnsureUser(ctx, "owner@example.com")
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	if ids := normalize.PeopleFrom(row["RecipientsId"]); len(ids) != 1 || ids[0].ID != owner.ID {
		t.Errorf("expected the owner's root site id as recipient, got %v", row["RecipientsId"])
	}

	var item mapping.RAIDItem
	if err := json.Unmarshal([]byte(row.String("Payload")), &item); err != nil {
		t.Fatalf("payload is not a RAID item: %v", err)
	}
	if item.Title != "Vendor delay" {
		t.Errorf("unexpected payload item %+v", item)
	}

	t.Run("DeleteDoesNotTrigger", func(t *testing.T) {
		if _, err := s.RAID.Delete(ctx, out.Item.RaidID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
		if got := len(h.triggers(t, 1)); got != 1 {
			t.Errorf("expected no trigger for a delete, got %d rows", got)
		}
	})
}

func TestWatch(t *testing.T) {
	h := newHarness(t)

	alpha, _ := h.pool.Get("https://example.com/sites/alpha")
	h.pool.Get("https://example.com/sites/beta")

	if err := h.worker.Watch(alpha); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	stats := h.worker.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}
	for _, topic := range stats.Topics {
		if topic != domain.TopicItemSaved {
			t.Errorf("unexpected topic %q", topic)
		}
	}

	if err := h.worker.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if stats := h.worker.GetStats(); stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
	if err := h.worker.Watch(alpha); err == nil {
		t.Error("expected Watch to fail after Stop")
	}
}

func TestTriggerRecord(t *testing.T) {
	event := domain.ItemEvent{
		ItemType:   "RCA",
		Action:     "updated",
		ItemID:     "7",
		Title:      "Outage",
		Recipients: []domain.PersonRef{{ID: 3}, {Email: "a@example.com"}},
	}
	row := TriggerRecord(event, []byte(`{"id":7}`), fixedNow)

	if row.String("Payload") != `{"id":7}` {
		t.Errorf("unexpected payload %v", row["Payload"])
	}
	recipients, ok := row["RecipientsId"].(domain.PersonValue)
	if !ok || !recipients.Multi || len(recipients.IDs) != 2 || recipients.IDs[0] != 3 || recipients.IDs[1] != "a@example.com" {
		t.Errorf("expected a marked id and email, got %#v", row["RecipientsId"])
	}
	if row["ItemId"] != event.ItemID {
		t.Errorf("expected ItemId to stay %q, got %#v", event.ItemID, row["ItemId"])
	}

	event.Recipients = []domain.PersonRef{{ID: 4, Email: "b@example.com"}}
	if v := TriggerRecord(event, nil, fixedNow)["RecipientsId"].(domain.PersonValue); v.IDs[0] != "b@example.com" {
		t.Errorf("expected the email to win over a site id, got %v", v.IDs)
	}

	event.Recipients = nil
	if _, ok := TriggerRecord(event, nil, fixedNow)["RecipientsId"]; ok {
		t.Error("expected no RecipientsId without recipients")
	}
}
