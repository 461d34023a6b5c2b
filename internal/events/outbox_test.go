package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOutbox(t *testing.T) (*Outbox, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return NewOutbox(db, node), db
}

func TestPublishDedupe(t *testing.T) {
	outbox, db := setupOutbox(t)
	ctx := context.Background()

	event := Event{
		Type:      EventInvoiceCreated,
		Payload:   map[string]any{"invoice_id": "1"},
		DedupeKey: "invoice:1:created",
	}
	if err := outbox.Publish(ctx, event); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := outbox.Publish(ctx, event); err != nil {
		t.Fatalf("duplicate publish should be silent: %v", err)
	}

	var count int64
	if err := db.Model(&OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one stored event, got %d", count)
	}
}

func TestFetchAndMarkPublished(t *testing.T) {
	outbox, _ := setupOutbox(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := outbox.Publish(ctx, Event{
			Type:    EventPaymentApplied,
			Payload: map[string]any{"n": i},
		}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	pending, err := outbox.FetchUnpublished(ctx, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}

	ids := []snowflake.ID{pending[0].ID, pending[1].ID}
	if err := outbox.MarkPublished(ctx, ids); err != nil {
		t.Fatalf("mark: %v", err)
	}

	pending, err = outbox.FetchUnpublished(ctx, 10)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending after mark, got %d", len(pending))
	}
}

func TestPublishTxRequiresTransaction(t *testing.T) {
	outbox, _ := setupOutbox(t)
	if err := outbox.PublishTx(context.Background(), nil, Event{Type: EventInvoicePaid}); err == nil {
		t.Fatal("expected error without a transaction")
	}
}
