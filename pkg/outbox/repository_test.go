package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook/fieldbook-backend/pkg/db/dbtest"
	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
)

func TestEmitThenFetchAndMark(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	payoutID := uuid.New()

	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventPayoutCreated,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payoutID,
		Actor:         SystemActor("webhook"),
		Data:          map[string]any{"amount_cfa": 9000},
	}))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, payoutID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, currentVersion, envelope.Version)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "webhook", envelope.Actor.System)

	require.NoError(t, repo.MarkFailedTx(conn, rows[0].ID, errors.New("pubsub unavailable")))
	require.NoError(t, repo.MarkFailedTx(conn, rows[0].ID, errors.New("pubsub unavailable")))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].AttemptCount)

	require.NoError(t, repo.MarkTerminalTx(conn, rows[0].ID, errors.New("bad payload"), 3))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows, "rows at the attempt ceiling are not fetched")
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.OutboxEventType("payout_exploded"),
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
	})
	require.Error(t, err)
	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestDeletePublishedBeforeKeepsPendingRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Now().UTC()

	old := models.OutboxEvent{EventType: enums.EventPayoutSucceeded, AggregateType: enums.AggregatePayout, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	recent := models.OutboxEvent{EventType: enums.EventPayoutSucceeded, AggregateType: enums.AggregatePayout, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	pending := models.OutboxEvent{EventType: enums.EventPayoutCreated, AggregateType: enums.AggregatePayout, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	for _, row := range []*models.OutboxEvent{&old, &recent, &pending} {
		require.NoError(t, conn.Create(row).Error)
	}
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", old.ID).Update("published_at", now.Add(-40*24*time.Hour)).Error)
	require.NoError(t, repo.MarkPublishedTx(conn, recent.ID))

	deleted, err := repo.DeletePublishedBefore(conn, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}

func TestDLQInsertFindAndList(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()
	eventID := uuid.New()

	require.Error(t, dlq.InsertTx(conn, models.OutboxDLQ{ErrorReason: "boom"}))

	msg := "decode payload: unexpected end of JSON input"
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventMarketplacePaymentCreated,
		AggregateType: enums.AggregateMarketplacePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
		AttemptCount:  1,
	}))
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventPayoutFailed,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		AttemptCount:  10,
	}))

	found, err := dlq.FindByEventID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, found.ErrorReason)

	missing, err := dlq.FindByEventID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := dlq.List(ctx, enums.OutboxDLQReasonMaxAttempts, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventPayoutFailed, rows[0].EventType)

	all, err := dlq.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = dlq.List(ctx, enums.OutboxDLQErrorReason("timeout"), 10)
	require.Error(t, err)
}
