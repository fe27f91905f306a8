package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

type webhookFixture struct {
	processor *EventProcessor
	accounts  *memAccountRepo
	idmap     *memIDMappingRepo
	queue     *memSyncErrorRepo
	account   *sync.Account
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	accounts := newMemAccountRepo()
	idmap := newMemIDMappingRepo()
	queue := newMemSyncErrorRepo()

	account, err := sync.NewAccount("acct-1", "seller-42", "access", "refresh", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, accounts.Save(context.Background(), account))

	return &webhookFixture{
		processor: NewEventProcessor(accounts, idmap, queue, newMemSyncLogRepo(), newMemDedupe(), 3, zap.NewNop()),
		accounts:  accounts,
		idmap:     idmap,
		queue:     queue,
		account:   account,
	}
}

func TestEventProcessor_RecordMigrated(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the mapping and resolves the pending entry", func(t *testing.T) {
		f := newWebhookFixture(t)
		pending, err := sync.NewSyncError("acct-1", "orders", "999", "{}", sync.ErrorKindConnection, "timeout", 3)
		require.NoError(t, err)
		require.NoError(t, f.queue.Create(ctx, pending))

		err = f.processor.ProcessEvent(ctx, &WebhookEvent{
			EventID:     "evt-1",
			Type:        EventRecordMigrated,
			Scope:       "acct-1",
			SourceTable: "orders",
			SourceID:    "999",
			TargetType:  "sale.order",
			TargetID:    1001,
		})
		require.NoError(t, err)

		targetID, err := f.idmap.Resolve(ctx, "acct-1", "orders", "999")
		require.NoError(t, err)
		assert.EqualValues(t, 1001, targetID)

		entry, err := f.queue.FindBySource(ctx, "acct-1", "orders", "999")
		require.NoError(t, err)
		assert.Equal(t, sync.SyncErrorStateResolved, entry.State)
		assert.Equal(t, "webhook", entry.ResolvedBy)
	})

	t.Run("redelivery of a known mapping is acknowledged", func(t *testing.T) {
		f := newWebhookFixture(t)
		event := &WebhookEvent{
			Type:        EventRecordMigrated,
			Scope:       "acct-1",
			SourceTable: "orders",
			SourceID:    "999",
			TargetType:  "sale.order",
			TargetID:    1001,
		}

		require.NoError(t, f.processor.ProcessEvent(ctx, event))
		assert.NoError(t, f.processor.ProcessEvent(ctx, event))
	})

	t.Run("incomplete event is a validation error", func(t *testing.T) {
		f := newWebhookFixture(t)

		err := f.processor.ProcessEvent(ctx, &WebhookEvent{
			Type:  EventRecordMigrated,
			Scope: "acct-1",
		})
		assert.Equal(t, sync.ErrorKindValidation, sync.KindOf(err))
	})
}

func TestEventProcessor_RecordError(t *testing.T) {
	ctx := context.Background()

	t.Run("files a new dead letter entry", func(t *testing.T) {
		f := newWebhookFixture(t)

		err := f.processor.ProcessEvent(ctx, &WebhookEvent{
			Type:        EventRecordError,
			Scope:       "acct-1",
			SourceTable: "orders",
			SourceID:    "999",
			Kind:        "constraint",
			Message:     "target rejected the write",
			Payload:     []byte(`{"id":"999"}`),
		})
		require.NoError(t, err)

		entry, err := f.queue.FindPendingBySource(ctx, "acct-1", "orders", "999")
		require.NoError(t, err)
		assert.Equal(t, sync.ErrorKindConstraint, entry.Kind)
		assert.Equal(t, `{"id":"999"}`, entry.Payload)
	})

	t.Run("refreshes the existing pending entry", func(t *testing.T) {
		f := newWebhookFixture(t)
		pending, err := sync.NewSyncError("acct-1", "orders", "999", "{}", sync.ErrorKindConnection, "timeout", 3)
		require.NoError(t, err)
		require.NoError(t, f.queue.Create(ctx, pending))

		err = f.processor.ProcessEvent(ctx, &WebhookEvent{
			Type:        EventRecordError,
			Scope:       "acct-1",
			SourceTable: "orders",
			SourceID:    "999",
			Kind:        "transform",
			Message:     "bad shape",
		})
		require.NoError(t, err)

		entries, total, err := f.queue.List(ctx, "acct-1", sync.SyncErrorFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, sync.ErrorKindTransform, entries[0].Kind)
		assert.Equal(t, "bad shape", entries[0].Message)
	})

	t.Run("unrecognized kind is normalized to unknown", func(t *testing.T) {
		f := newWebhookFixture(t)

		err := f.processor.ProcessEvent(ctx, &WebhookEvent{
			Type:        EventRecordError,
			Scope:       "acct-1",
			SourceTable: "orders",
			SourceID:    "999",
			Kind:        "mystery",
		})
		require.NoError(t, err)

		entry, err := f.queue.FindPendingBySource(ctx, "acct-1", "orders", "999")
		require.NoError(t, err)
		assert.Equal(t, sync.ErrorKindUnknown, entry.Kind)
	})
}

func TestEventProcessor_MigrationCompleted(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)

	err := f.processor.ProcessEvent(ctx, &WebhookEvent{
		Type:  EventMigrationCompleted,
		Scope: "acct-1",
	})
	require.NoError(t, err)

	saved, err := f.accounts.FindByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.NotNil(t, saved.LastSyncAt)
}

func TestEventProcessor_Dedupe(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)

	event := &WebhookEvent{
		EventID:     "evt-dup",
		Type:        EventRecordError,
		Scope:       "acct-1",
		SourceTable: "orders",
		SourceID:    "999",
		Kind:        "connection",
		Message:     "timeout",
	}

	require.NoError(t, f.processor.ProcessEvent(ctx, event))

	// Redelivery with the same event id is acknowledged without effect
	event.Message = "changed on redelivery"
	require.NoError(t, f.processor.ProcessEvent(ctx, event))

	entry, err := f.queue.FindPendingBySource(ctx, "acct-1", "orders", "999")
	require.NoError(t, err)
	assert.Equal(t, "timeout", entry.Message)
}

func TestEventProcessor_Validation(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)

	t.Run("missing scope", func(t *testing.T) {
		err := f.processor.ProcessEvent(ctx, &WebhookEvent{Type: EventRecordMigrated})
		assert.Equal(t, sync.ErrorKindValidation, sync.KindOf(err))
	})

	t.Run("unknown event type", func(t *testing.T) {
		err := f.processor.ProcessEvent(ctx, &WebhookEvent{Type: "record_teleported", Scope: "acct-1"})
		assert.ErrorIs(t, err, ErrUnknownEventType)
	})

	t.Run("completion for unknown scope", func(t *testing.T) {
		err := f.processor.ProcessEvent(ctx, &WebhookEvent{Type: EventMigrationCompleted, Scope: "acct-9"})
		assert.ErrorIs(t, err, sync.ErrAccountNotFound)
	})
}
