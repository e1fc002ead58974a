package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/dvidales/codbot/internal/logger"
	"github.com/dvidales/codbot/internal/store"
	"github.com/sirupsen/logrus"
)

// Multiplexer maintains one live session per logical account or pending
// sign-up. Sessions are created lazily on first contact and evicted once
// they mark themselves removable.
//
// Session keys: onboarded sessions are keyed by account id, pending sign-ups
// by the originating chat id. A completed sign-up flips the resolution to the
// new account on the very next reference, so a stale sign-up session never
// receives another routed update even before the sweep evicts it.
type Multiplexer struct {
	gw           Gateway
	accounts     AccountStore
	statsFactory StatsFactory
	sessions     map[string]*Session
	now          func() time.Time
}

// NewMultiplexer creates an empty multiplexer.
func NewMultiplexer(gw Gateway, accounts AccountStore, statsFactory StatsFactory) *Multiplexer {
	return &Multiplexer{
		gw:           gw,
		accounts:     accounts,
		statsFactory: statsFactory,
		sessions:     make(map[string]*Session),
		now:          time.Now,
	}
}

// SetClock overrides the multiplexer clock. Sessions created afterwards
// inherit it; intended for tests.
func (m *Multiplexer) SetClock(now func() time.Time) {
	m.now = now
}

// Route resolves the owning session for an update, creating it on first
// contact, and hands the update to the session's router. A stats login
// failure during onboarded session creation is returned to the caller, which
// logs and skips the update; it is not retried within the tick.
func (m *Multiplexer) Route(u Update) error {
	key, account, err := m.resolveIdentity(u)
	if err != nil {
		return fmt.Errorf("resolve identity for chat %d: %w", u.ChatID, err)
	}

	session, ok := m.sessions[key]
	if !ok {
		session, err = m.createSession(account)
		if err != nil {
			return fmt.Errorf("create session %s: %w", key, err)
		}
		m.sessions[key] = session
		logger.WithFields(logrus.Fields{
			"session": key,
			"kind":    session.Kind(),
		}).Info("session-created")
	}

	session.Handle(u)
	return nil
}

// resolveIdentity maps an update to a session key: the owning account by chat
// id, then by user id, then a transient sign-up identity keyed by chat.
func (m *Multiplexer) resolveIdentity(u Update) (string, *store.Account, error) {
	account, err := m.accounts.AccountByChatID(u.ChatID)
	if errors.Is(err, store.ErrNotFound) {
		account, err = m.accounts.AccountByUserID(u.UserID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("signup:%d", u.ChatID), nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("account:%d", account.ID), account, nil
}

// createSession wires the session variant for the resolved identity. An
// onboarded account gets a freshly authenticated stats client; a login
// failure fails the construction loudly.
func (m *Multiplexer) createSession(account *store.Account) (*Session, error) {
	if account == nil {
		return NewSignUpSession(m.gw, m.accounts, m.now), nil
	}
	statsClient, err := m.statsFactory(account.CodUser, account.CodPassword)
	if err != nil {
		return nil, fmt.Errorf("stats login for %s: %w", account.CodUser, err)
	}
	return NewAccountSession(m.gw, m.accounts, statsClient, account, m.now), nil
}

// ProcessLoop drives every live session's periodic feeds once.
func (m *Multiplexer) ProcessLoop() {
	for _, session := range m.sessions {
		session.ProcessLoop()
	}
}

// Sweep evicts every session whose removable flag is set. It runs at the end
// of each tick so a removable session is gone before the next tick touches
// the session set.
func (m *Multiplexer) Sweep() {
	for key, session := range m.sessions {
		if session.Removable() {
			delete(m.sessions, key)
			logger.WithField("session", key).Info("session-evicted")
		}
	}
}

// SessionCount returns the number of live sessions.
func (m *Multiplexer) SessionCount() int {
	return len(m.sessions)
}
