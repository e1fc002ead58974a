package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(gw *fakeGateway, webhookURL string) *Engine {
	mux := NewMultiplexer(gw, newFakeStore(), func(user, password string) (StatsClient, error) {
		return &fakeStats{}, nil
	})
	return NewEngine(gw, mux, 1, webhookURL)
}

func TestEngine_OffsetAdvancesPastBatch(t *testing.T) {
	gw := &fakeGateway{}
	engine := newTestEngine(gw, "")

	engine.processBatch([]Update{{ID: 5, ChatID: 1, UserID: 1}})
	assert.Equal(t, 6, engine.Offset())
}

func TestEngine_OffsetToleratesOutOfOrderBatches(t *testing.T) {
	gw := &fakeGateway{}
	engine := newTestEngine(gw, "")

	// First batch carries id 5, the second ids 3 and 7 out of order: the
	// cursor must move 6 then 8 and never regress.
	engine.processBatch([]Update{{ID: 5, ChatID: 1, UserID: 1}})
	require.Equal(t, 6, engine.Offset())

	engine.processBatch([]Update{{ID: 3, ChatID: 1, UserID: 1}, {ID: 7, ChatID: 1, UserID: 1}})
	assert.Equal(t, 8, engine.Offset())
}

func TestEngine_OffsetNeverMovesBackwards(t *testing.T) {
	gw := &fakeGateway{}
	engine := newTestEngine(gw, "")

	engine.processBatch([]Update{{ID: 10, ChatID: 1, UserID: 1}})
	require.Equal(t, 11, engine.Offset())

	engine.processBatch([]Update{{ID: 2, ChatID: 1, UserID: 1}})
	assert.Equal(t, 11, engine.Offset())
}

func TestEngine_EmptyBatchKeepsOffset(t *testing.T) {
	gw := &fakeGateway{}
	engine := newTestEngine(gw, "")

	engine.processBatch(nil)
	assert.Zero(t, engine.Offset())
}

func TestEngine_RoutingErrorDoesNotAbortBatch(t *testing.T) {
	gw := &fakeGateway{}
	accounts := newFakeStore()
	_, err := accounts.CreateAccount("owner", "badpass", 100, 200)
	require.NoError(t, err)

	// Every session construction fails; the batch must still advance the
	// offset past both updates.
	mux := NewMultiplexer(gw, accounts, func(user, password string) (StatsClient, error) {
		return nil, assert.AnError
	})
	engine := NewEngine(gw, mux, 1, "")

	engine.processBatch([]Update{
		slashCommand(41, 100, 200, "/start"),
		slashCommand(42, 100, 200, "/help"),
	})
	assert.Equal(t, 43, engine.Offset())
	assert.Zero(t, mux.SessionCount())
}

func TestEngine_RunProcessesBatchAndStopsOnCancel(t *testing.T) {
	gw := &fakeGateway{
		batches: [][]Update{{slashCommand(7, 500, 600, "/start")}},
	}
	engine := newTestEngine(gw, "")

	ctx, cancel := context.WithCancel(context.Background())
	engine.sleep = func(time.Duration) { cancel() }

	err := engine.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 8, engine.Offset())
	require.NotEmpty(t, gw.textsFor(500))
}

func TestEngine_EnsureWebhookRegistersWhenMissing(t *testing.T) {
	gw := &fakeGateway{}
	engine := newTestEngine(gw, "https://bot.example.com/updates")

	require.NoError(t, engine.ensureWebhook())
	assert.Equal(t, []string{"https://bot.example.com/updates"}, gw.setWebhooks)
}

func TestEngine_EnsureWebhookSkipsWhenAlreadyRegistered(t *testing.T) {
	gw := &fakeGateway{webhookURL: "https://bot.example.com/updates"}
	engine := newTestEngine(gw, "https://bot.example.com/updates")

	require.NoError(t, engine.ensureWebhook())
	assert.Empty(t, gw.setWebhooks)
}

func TestEngine_NoWebhookConfiguredMeansNoRegistration(t *testing.T) {
	gw := &fakeGateway{}
	engine := newTestEngine(gw, "")

	require.NoError(t, engine.ensureWebhook())
	assert.Empty(t, gw.setWebhooks)
}
