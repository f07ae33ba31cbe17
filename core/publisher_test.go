package core

import (
	"context"
	"testing"
)

func TestPublish_FanOutCardinality(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	matching := []string{}
	for _, spec := range []struct {
		name   string
		events []EventType
		active bool
	}{
		{"orders-a", []EventType{"order.created"}, true},
		{"orders-b", []EventType{"order.created", "order.updated"}, true},
		{"everything", []EventType{"order.created", "invoice.paid"}, true},
		{"invoices", []EventType{"invoice.paid"}, true},
		{"inactive-orders", []EventType{"order.created"}, false},
	} {
		created := f.createSubscription(t, "tenant_a", spec.name, "https://hooks.example.com/"+spec.name, spec.events...)
		if !spec.active {
			inactive := false
			if _, err := f.service.UpdateSubscription(ctx, UpdateSubscriptionInput{
				TenantID: "tenant_a",
				ID:       created.Subscription.ID,
				IsActive: &inactive,
			}); err != nil {
				t.Fatalf("deactivate %s: %v", spec.name, err)
			}
			continue
		}
		for _, event := range spec.events {
			if event == "order.created" {
				matching = append(matching, created.Subscription.ID)
			}
		}
	}

	result, err := f.service.Publish(ctx, "tenant_a", "order.created", map[string]any{"order_id": "ord_1"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("expected fan-out to 3 subscriptions, got %d", len(result.Entries))
	}

	seen := map[string]bool{}
	eventID := result.Entries[0].EventID
	for _, entry := range result.Entries {
		if entry.Status != OutboxStatusPending || entry.Attempts != 0 {
			t.Fatalf("expected fresh pending entry, got %#v", entry)
		}
		if entry.EventID != eventID {
			t.Fatalf("expected all entries to share the event id")
		}
		seen[entry.SubscriptionID] = true
	}
	for _, id := range matching {
		if !seen[id] {
			t.Fatalf("expected entry for subscription %s", id)
		}
	}

	if result.TriggerJob == nil {
		t.Fatalf("expected a delivery trigger job")
	}
	if result.TriggerJob.Type != JobTypeWebhookDeliver {
		t.Fatalf("expected trigger type %q, got %q", JobTypeWebhookDeliver, result.TriggerJob.Type)
	}
	// The fan-out wakeup goes through the same enqueuer path as plain jobs.
	if len(f.enqueuer.messages) != 1 || f.enqueuer.messages[0].JobID != result.TriggerJob.ID {
		t.Fatalf("expected trigger wakeup for job %s", result.TriggerJob.ID)
	}

	activity := f.activity.byAction("event.published")
	if len(activity) != 1 {
		t.Fatalf("expected one publish activity entry, got %d", len(activity))
	}
	if activity[0].Metadata["fan_out"] != 3 {
		t.Fatalf("expected fan_out metadata 3, got %v", activity[0].Metadata["fan_out"])
	}
}

func TestPublish_NoMatchesMeansNoTrigger(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	f.createSubscription(t, "tenant_a", "invoices", "https://hooks.example.com/invoices", "invoice.paid")

	result, err := f.service.Publish(ctx, "tenant_a", "order.created", nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(result.Entries))
	}
	if result.TriggerJob != nil {
		t.Fatalf("expected no trigger job without matches")
	}
	if len(f.enqueuer.messages) != 0 {
		t.Fatalf("expected no wakeup without matches")
	}
}

func TestPublish_TenantIsolation(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	f.createSubscription(t, "tenant_a", "orders", "https://hooks.example.com/a", "order.created")
	f.createSubscription(t, "tenant_b", "orders", "https://hooks.example.com/b", "order.created")

	result, err := f.service.Publish(ctx, "tenant_a", "order.created", nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected only tenant_a subscription, got %d entries", len(result.Entries))
	}
	if result.Entries[0].TenantID != "tenant_a" {
		t.Fatalf("expected tenant_a entry, got %q", result.Entries[0].TenantID)
	}
}

func TestPublish_Validation(t *testing.T) {
	f := newTestFixture(t)
	if _, err := f.service.Publish(context.Background(), "", "order.created", nil); err == nil {
		t.Fatalf("expected missing tenant to fail")
	}
	if _, err := f.service.Publish(context.Background(), "tenant_a", "  ", nil); err == nil {
		t.Fatalf("expected missing event type to fail")
	}
}
