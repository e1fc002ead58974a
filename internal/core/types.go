package core

import (
	"context"
	"time"

	"github.com/dvidales/codbot/internal/stats"
	"github.com/dvidales/codbot/internal/store"
)

// EntityTypeBotCommand is the entity type Telegram attaches to command spans.
const EntityTypeBotCommand = "bot_command"

// Entity is a text-span annotation attached to an update's text.
type Entity struct {
	Type   string
	Offset int
	Length int
}

// Update is one inbound event from the messaging gateway. It is immutable
// once received.
type Update struct {
	ID       int
	ChatID   int64
	UserID   int64
	Text     string
	Entities []Entity
}

// Gateway is the narrow surface of the messaging platform the core needs.
type Gateway interface {
	// FetchUpdates long-polls for updates starting at offset.
	FetchUpdates(offset, timeoutSeconds int) ([]Update, error)

	// SendMessage sends a text message to a chat. Failures are expected to
	// be handled (logged) by the caller at the send boundary.
	SendMessage(chatID int64, text string) error

	// WebhookURL returns the currently registered webhook URL, if any.
	WebhookURL() (string, error)

	// SetWebhook registers a webhook URL for update delivery.
	SetWebhook(url string) error
}

// HandlerFunc handles one routed command invocation.
type HandlerFunc func(args []string, u Update)

// FeedFunc evaluates one periodic feed against the subscribed chat.
// It reports whether the evaluation actually ran and produced work; a
// gated skip or an empty upstream window reports false so the last-run
// baseline is preserved for the next tick.
type FeedFunc func(lastRun time.Time, chatID int64) bool

// Feed pairs a feed function with its feed-local minimum interval.
type Feed struct {
	Run      FeedFunc
	Interval time.Duration
}

// StatsClient is the authenticated stats provider surface a session uses.
type StatsClient interface {
	PlayerInfo(ctx context.Context, player, platform string) (*stats.PlayerProfile, error)
	ActivityFeed(ctx context.Context, sinceEpoch int64) ([]stats.ActivityEvent, error)
	ScoresFeed(ctx context.Context, sinceEpoch int64, player, platform string) ([]stats.Match, error)
}

// StatsFactory builds an authenticated stats client for an account's
// credentials. It must fail loudly when login fails; the multiplexer treats
// that as fatal for the session being constructed.
type StatsFactory func(user, password string) (StatsClient, error)

// AccountStore is the persistence surface the multiplexer and sessions use.
type AccountStore interface {
	CreateAccount(codUser, codPassword string, chatID, userID int64) (*store.Account, error)
	AccountByChatID(chatID int64) (*store.Account, error)
	AccountByUserID(userID int64) (*store.Account, error)
	AccountByToken(token string) (*store.Account, error)
	CreateGroup(groupID int64, accountID uint) (*store.ChatGroup, error)
	CreateFriend(groupID int64, player, platform string) (*store.Friend, error)
	FriendsByGroup(groupID int64) ([]store.Friend, error)
	SetGroupFeeds(groupID int64, feeds []string) error
}
