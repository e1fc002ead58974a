package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvidales/codbot/internal/logger"
	"github.com/dvidales/codbot/internal/store"
	"github.com/dvidales/codbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// SessionKind tags the session variant.
type SessionKind int

const (
	// KindAccount is a fully onboarded session backed by an authenticated
	// stats client.
	KindAccount SessionKind = iota
	// KindSignUp is a pending sign-up flow for a chat with no account.
	KindSignUp
)

// Session is the per-account (or per-pending-sign-up) router-and-state
// bundle inside the multiplexer. All of its state is owned by the single
// polling loop goroutine.
type Session struct {
	kind     SessionKind
	account  *store.Account
	gw       Gateway
	accounts AccountStore
	stats    StatsClient
	registry *Registry

	lastRun  map[string]time.Time
	feedChat map[string]int64

	// High-water marks so a transient empty result window between polls
	// never loses data. Activity event dates are epoch millis, match start
	// times epoch seconds.
	activityEpoch int64
	scoresEpoch   int64

	removable bool
	now       func() time.Time
}

// NewAccountSession builds an onboarded session for an account. The stats
// client is expected to be already authenticated.
func NewAccountSession(gw Gateway, accounts AccountStore, statsClient StatsClient, account *store.Account, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	s := &Session{
		kind:          KindAccount,
		account:       account,
		gw:            gw,
		accounts:      accounts,
		stats:         statsClient,
		lastRun:       make(map[string]time.Time),
		feedChat:      make(map[string]int64),
		activityEpoch: now().UnixMilli(),
		scoresEpoch:   now().Unix(),
		now:           now,
	}
	s.registry = NewRegistry(
		map[string]HandlerFunc{
			"start":        s.cmdStart,
			"help":         s.cmdHelp,
			"cod_level":    s.cmdCodLevel,
			"add_friend":   s.cmdAddFriend,
			"friends":      s.cmdFriends,
			defaultCommand: s.cmdDefault,
		},
		map[string]Feed{
			"activity_feeds": {Run: s.runActivityFeed, Interval: constants.ActivityFeedInterval},
			"scores_feeds":   {Run: s.runScoresFeed, Interval: constants.ScoresFeedInterval},
		},
	)
	return s
}

// NewSignUpSession builds a sign-up flow session for a chat that resolves to
// no account. It carries no stats client and no feeds.
func NewSignUpSession(gw Gateway, accounts AccountStore, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	s := &Session{
		kind:     KindSignUp,
		gw:       gw,
		accounts: accounts,
		lastRun:  make(map[string]time.Time),
		feedChat: make(map[string]int64),
		now:      now,
	}
	s.registry = NewRegistry(
		map[string]HandlerFunc{
			"start":        s.cmdSignUpStart,
			"signup":       s.cmdSignUp,
			"link":         s.cmdLink,
			defaultCommand: s.cmdSignUpDefault,
		},
		nil,
	)
	return s
}

// Kind returns the session variant tag.
func (s *Session) Kind() SessionKind {
	return s.kind
}

// Removable reports whether the multiplexer should evict this session before
// the next tick.
func (s *Session) Removable() bool {
	return s.removable
}

// Handle routes one update through the session's command registry. Updates
// with no text or no command span are silently ignored.
func (s *Session) Handle(u Update) {
	name, args, ok := ParseCommand(u)
	if !ok {
		return
	}
	s.registry.Dispatch(name, args, u, s.activateFeed)
}

// ProcessLoop evaluates every registered feed with an active subscription.
// A feed that reports work done gets its last-run timestamp advanced; a
// skipped or empty evaluation keeps the previous baseline so the next tick
// retries from it.
func (s *Session) ProcessLoop() {
	for _, name := range s.registry.FeedNames() {
		chatID := s.feedChat[name]
		if chatID == 0 {
			continue
		}
		feed, _ := s.registry.Feed(name)
		if feed.Run(s.lastRun[name], chatID) {
			s.lastRun[name] = s.now()
		}
	}
}

// send delivers a message and logs failures without propagating them; a
// failed outbound notification must never abort update processing.
func (s *Session) send(chatID int64, text string) {
	if err := s.gw.SendMessage(chatID, text); err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Warn("message-send-failed")
	}
}

func (s *Session) cmdStart(args []string, u Update) {
	s.send(u.ChatID, "Hey there! I am codbot. Type /help to see what I can do.")
}

func (s *Session) cmdHelp(args []string, u Update) {
	var b strings.Builder
	b.WriteString("List of commands:\n")
	b.WriteString("- /start\n")
	b.WriteString("- /cod_level <player> <platform>\n")
	b.WriteString("- /add_friend <player> <platform>\n")
	b.WriteString("- /friends\n")
	feedNames := s.registry.FeedNames()
	sort.Strings(feedNames)
	for _, name := range feedNames {
		fmt.Fprintf(&b, "- /activate_%s <yes|no>\n", name)
	}
	s.send(u.ChatID, b.String())
}

func (s *Session) cmdCodLevel(args []string, u Update) {
	if len(args) != 2 {
		s.send(u.ChatID, "Usage: /cod_level <player> <platform>")
		return
	}
	player, platform := args[0], args[1]
	s.send(u.ChatID, fmt.Sprintf("Getting information from player %s...", player))

	profile, err := s.stats.PlayerInfo(context.Background(), player, platform)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"player":   player,
			"platform": platform,
			"error":    err,
		}).Warn("player-info-lookup-failed")
		s.send(u.ChatID, fmt.Sprintf("Error getting info from the player %s... :(", player))
		return
	}
	s.send(u.ChatID, fmt.Sprintf("%s has the level %d!", player, profile.Data.Level))
}

func (s *Session) cmdAddFriend(args []string, u Update) {
	if len(args) != 2 {
		s.send(u.ChatID, "Usage: /add_friend <player> <platform>")
		return
	}
	player, platform := args[0], args[1]

	if _, err := s.accounts.CreateGroup(u.ChatID, s.account.ID); err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": u.ChatID,
			"error":   err,
		}).Warn("group-link-failed")
		s.send(u.ChatID, "Could not register this chat, please try again later")
		return
	}
	if _, err := s.accounts.CreateFriend(u.ChatID, player, platform); err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": u.ChatID,
			"player":  player,
			"error":   err,
		}).Warn("friend-create-failed")
		s.send(u.ChatID, fmt.Sprintf("Could not add %s, please try again later", player))
		return
	}
	s.send(u.ChatID, fmt.Sprintf("Now tracking %s (%s) in this chat", player, platform))
}

func (s *Session) cmdFriends(args []string, u Update) {
	friends, err := s.accounts.FriendsByGroup(u.ChatID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": u.ChatID,
			"error":   err,
		}).Warn("friend-list-failed")
		s.send(u.ChatID, "Could not list friends, please try again later")
		return
	}
	if len(friends) == 0 {
		s.send(u.ChatID, "No friends tracked in this chat yet. Use /add_friend <player> <platform>")
		return
	}
	var b strings.Builder
	b.WriteString("Tracked friends:\n")
	for _, f := range friends {
		fmt.Fprintf(&b, "- %s (%s)\n", f.PlayerName, f.Platform)
	}
	s.send(u.ChatID, b.String())
}

func (s *Session) cmdDefault(args []string, u Update) {
	s.send(u.ChatID, "Don't know what you say. If you need help, type /help")
}

// activateFeed handles the /activate_<feed> yes|no meta-command. A malformed
// argument list replies with usage and changes no state.
func (s *Session) activateFeed(feedName string, args []string, u Update) {
	if len(args) != 1 {
		s.send(u.ChatID, fmt.Sprintf("Usage: /activate_%s [yes|no]", feedName))
		return
	}
	if args[0] == "yes" {
		s.feedChat[feedName] = u.ChatID
		s.syncGroupFeeds(u.ChatID)
		s.send(u.ChatID, fmt.Sprintf("Congrats! %s activated", feedName))
		return
	}
	s.feedChat[feedName] = 0
	s.syncGroupFeeds(u.ChatID)
	s.send(u.ChatID, fmt.Sprintf("%s has been deactivated successfully", feedName))
}

// syncGroupFeeds mirrors the in-memory subscription set to the store so
// feed-activated account listings stay accurate across restarts.
func (s *Session) syncGroupFeeds(chatID int64) {
	var active []string
	for name, subscribed := range s.feedChat {
		if subscribed != 0 {
			active = append(active, name)
		}
	}
	sort.Strings(active)
	if err := s.accounts.SetGroupFeeds(chatID, active); err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Warn("feed-subscription-persist-failed")
	}
}

// runActivityFeed reports new friend-feed events to the subscribed chat.
func (s *Session) runActivityFeed(lastRun time.Time, chatID int64) bool {
	if s.now().Sub(lastRun) < constants.ActivityFeedInterval {
		return false
	}
	events, err := s.stats.ActivityFeed(context.Background(), s.activityEpoch)
	if err != nil {
		logger.WithField("error", err).Warn("activity-feed-fetch-failed")
		return false
	}
	if len(events) == 0 {
		return false
	}
	for _, ev := range events {
		s.send(chatID, fmt.Sprintf("New activity: %s -> %s", ev.Username, ev.Category))
		if ev.Date > s.activityEpoch {
			s.activityEpoch = ev.Date
		}
	}
	return true
}

// runScoresFeed reports new matches for every friend tracked in the
// subscribed chat.
func (s *Session) runScoresFeed(lastRun time.Time, chatID int64) bool {
	if s.now().Sub(lastRun) < constants.ScoresFeedInterval {
		return false
	}
	friends, err := s.accounts.FriendsByGroup(chatID)
	if err != nil {
		logger.WithField("error", err).Warn("scores-feed-roster-failed")
		return false
	}

	produced := false
	maxStart := s.scoresEpoch
	for _, f := range friends {
		matches, err := s.stats.ScoresFeed(context.Background(), s.scoresEpoch, f.PlayerName, f.Platform)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"player": f.PlayerName,
				"error":  err,
			}).Warn("scores-feed-fetch-failed")
			continue
		}
		for _, m := range matches {
			s.send(chatID, fmt.Sprintf("%s finished a match: %d kills / %d deaths",
				f.PlayerName, int(m.PlayerStats.Kills), int(m.PlayerStats.Deaths)))
			if m.UTCStartSeconds > maxStart {
				maxStart = m.UTCStartSeconds
			}
			produced = true
		}
	}
	if produced {
		s.scoresEpoch = maxStart
	}
	return produced
}

func (s *Session) cmdSignUpStart(args []string, u Update) {
	s.send(u.ChatID, "Welcome! Link your Call of Duty account with /signup <user> <password>, "+
		"or join an existing account with /link <token>.")
}

func (s *Session) cmdSignUp(args []string, u Update) {
	if len(args) != 2 {
		s.send(u.ChatID, "Usage: /signup <user> <password>")
		return
	}
	account, err := s.accounts.CreateAccount(args[0], args[1], u.ChatID, u.UserID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": u.ChatID,
			"error":   err,
		}).Error("account-create-failed")
		s.send(u.ChatID, "Could not create your account, please try again later")
		return
	}
	s.removable = true
	s.send(u.ChatID, fmt.Sprintf("Account created for %s! Use /link %s from a group chat "+
		"to receive stats there.", account.CodUser, account.SecretToken))
}

func (s *Session) cmdLink(args []string, u Update) {
	if len(args) != 1 {
		s.send(u.ChatID, "Usage: /link <token>")
		return
	}
	account, err := s.accounts.AccountByToken(args[0])
	if errors.Is(err, store.ErrNotFound) {
		s.send(u.ChatID, "Unknown token")
		return
	}
	if err != nil {
		logger.WithField("error", err).Error("account-token-lookup-failed")
		s.send(u.ChatID, "Could not link this chat, please try again later")
		return
	}
	if _, err := s.accounts.CreateGroup(u.ChatID, account.ID); err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": u.ChatID,
			"error":   err,
		}).Error("group-link-failed")
		s.send(u.ChatID, "Could not link this chat, please try again later")
		return
	}
	s.removable = true
	s.send(u.ChatID, fmt.Sprintf("This chat is now linked to %s's account", account.CodUser))
}

func (s *Session) cmdSignUpDefault(args []string, u Update) {
	s.send(u.ChatID, "This chat has no linked account yet. Type /start to begin.")
}
