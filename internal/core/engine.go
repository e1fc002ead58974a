package core

import (
	"context"
	"fmt"
	"time"

	"github.com/dvidales/codbot/internal/logger"
	"github.com/sirupsen/logrus"
)

// Engine owns the polling loop: fetch updates, route them strictly in
// arrival order, advance the offset cursor past the whole batch, drive one
// feed dispatcher sweep, evict removable sessions, sleep, repeat.
type Engine struct {
	gw             Gateway
	mux            *Multiplexer
	timeoutSeconds int
	webhookURL     string

	// offset is the monotonic cursor marking the next unseen update id. It
	// only ever advances, and only after a batch is fully processed.
	offset int

	sleep func(time.Duration)
}

// NewEngine creates an engine polling with the given long-poll timeout.
func NewEngine(gw Gateway, mux *Multiplexer, timeoutSeconds int, webhookURL string) *Engine {
	if timeoutSeconds <= 0 {
		timeoutSeconds = DefaultPollTimeoutSeconds
	}
	return &Engine{
		gw:             gw,
		mux:            mux,
		timeoutSeconds: timeoutSeconds,
		webhookURL:     webhookURL,
		sleep:          time.Sleep,
	}
}

// Run polls for updates until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.ensureWebhook(); err != nil {
		return err
	}

	logger.WithField("poll_timeout_s", e.timeoutSeconds).Info("engine-polling-started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("engine-shutting-down")
			return ctx.Err()
		default:
		}

		updates, err := e.gw.FetchUpdates(e.offset, e.timeoutSeconds)
		if err != nil {
			logger.WithField("error", err).Error("update-fetch-failed")
			e.sleep(time.Duration(e.timeoutSeconds) * time.Second)
			continue
		}

		e.processBatch(updates)
		e.mux.ProcessLoop()
		e.mux.Sweep()
		e.sleep(time.Duration(e.timeoutSeconds) * time.Second)
	}
}

// processBatch routes every update in arrival order, then advances the
// offset cursor. The cursor moves to max(previous, max update id + 1) so an
// out-of-order batch from the gateway can never move it backwards, and it is
// only updated after the whole batch has been processed.
func (e *Engine) processBatch(updates []Update) {
	if len(updates) == 0 {
		return
	}

	next := e.offset
	for _, u := range updates {
		if err := e.mux.Route(u); err != nil {
			// A session construction failure (e.g. bad stats credentials)
			// must not crash the process; log and skip the update.
			logger.WithFields(logrus.Fields{
				"update_id": u.ID,
				"chat_id":   u.ChatID,
				"error":     err,
			}).Error("update-routing-failed")
		}
		if u.ID+1 > next {
			next = u.ID + 1
		}
	}
	e.offset = next

	logger.WithFields(logrus.Fields{
		"batch_size": len(updates),
		"offset":     e.offset,
	}).Debug("batch-processed")
}

// Offset returns the current update cursor.
func (e *Engine) Offset() int {
	return e.offset
}

// ensureWebhook registers the configured webhook URL when none is registered
// yet. Polling stays the transport either way; the registration only keeps
// the gateway-side configuration consistent with the config file.
func (e *Engine) ensureWebhook() error {
	if e.webhookURL == "" {
		return nil
	}
	current, err := e.gw.WebhookURL()
	if err != nil {
		return fmt.Errorf("query webhook info: %w", err)
	}
	if current != "" {
		return nil
	}
	if err := e.gw.SetWebhook(e.webhookURL); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}
	logger.WithField("url", e.webhookURL).Info("webhook-registered")
	return nil
}
