package core

import (
	"context"
	"fmt"
	"time"

	"github.com/dvidales/codbot/internal/stats"
	"github.com/dvidales/codbot/internal/store"
)

// fakeGateway records outbound messages and serves scripted update batches.
type fakeGateway struct {
	sent        []sentMessage
	sendErr     error
	batches     [][]Update
	fetchErr    error
	webhookURL  string
	setWebhooks []string
}

type sentMessage struct {
	chatID int64
	text   string
}

func (g *fakeGateway) FetchUpdates(offset, timeoutSeconds int) ([]Update, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	if len(g.batches) == 0 {
		return nil, nil
	}
	batch := g.batches[0]
	g.batches = g.batches[1:]
	return batch, nil
}

func (g *fakeGateway) SendMessage(chatID int64, text string) error {
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (g *fakeGateway) WebhookURL() (string, error) {
	return g.webhookURL, nil
}

func (g *fakeGateway) SetWebhook(url string) error {
	g.setWebhooks = append(g.setWebhooks, url)
	return nil
}

func (g *fakeGateway) textsFor(chatID int64) []string {
	var texts []string
	for _, m := range g.sent {
		if m.chatID == chatID {
			texts = append(texts, m.text)
		}
	}
	return texts
}

// fakeStore is an in-memory AccountStore.
type fakeStore struct {
	nextID     uint
	accounts   map[uint]*store.Account
	byChat     map[int64]uint
	byUser     map[int64]uint
	byToken    map[string]uint
	friends    map[int64][]store.Friend
	groupFeeds map[int64][]string
	createErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   make(map[uint]*store.Account),
		byChat:     make(map[int64]uint),
		byUser:     make(map[int64]uint),
		byToken:    make(map[string]uint),
		friends:    make(map[int64][]store.Friend),
		groupFeeds: make(map[int64][]string),
	}
}

func (f *fakeStore) CreateAccount(codUser, codPassword string, chatID, userID int64) (*store.Account, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	account := &store.Account{
		ID:             f.nextID,
		CodUser:        codUser,
		CodPassword:    codPassword,
		SecretToken:    fmt.Sprintf("token-%d", f.nextID),
		TelegramChatID: chatID,
		TelegramUserID: userID,
	}
	f.accounts[account.ID] = account
	f.byChat[chatID] = account.ID
	f.byUser[userID] = account.ID
	f.byToken[account.SecretToken] = account.ID
	return account, nil
}

func (f *fakeStore) AccountByChatID(chatID int64) (*store.Account, error) {
	if id, ok := f.byChat[chatID]; ok {
		return f.accounts[id], nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) AccountByUserID(userID int64) (*store.Account, error) {
	if id, ok := f.byUser[userID]; ok {
		return f.accounts[id], nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) AccountByToken(token string) (*store.Account, error) {
	if id, ok := f.byToken[token]; ok {
		return f.accounts[id], nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateGroup(groupID int64, accountID uint) (*store.ChatGroup, error) {
	f.byChat[groupID] = accountID
	return &store.ChatGroup{TelegramGroupID: groupID, AccountID: accountID}, nil
}

func (f *fakeStore) CreateFriend(groupID int64, player, platform string) (*store.Friend, error) {
	friend := store.Friend{TelegramGroupID: groupID, PlayerName: player, Platform: platform}
	f.friends[groupID] = append(f.friends[groupID], friend)
	return &friend, nil
}

func (f *fakeStore) FriendsByGroup(groupID int64) ([]store.Friend, error) {
	return f.friends[groupID], nil
}

func (f *fakeStore) SetGroupFeeds(groupID int64, feeds []string) error {
	f.groupFeeds[groupID] = feeds
	return nil
}

// fakeStats is a scripted StatsClient.
type fakeStats struct {
	profile     *stats.PlayerProfile
	profileErr  error
	events      []stats.ActivityEvent
	activityErr error
	matches     []stats.Match

	playerCalls   int
	activitySince []int64
	scoresSince   []int64
}

func (f *fakeStats) PlayerInfo(ctx context.Context, player, platform string) (*stats.PlayerProfile, error) {
	f.playerCalls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeStats) ActivityFeed(ctx context.Context, sinceEpoch int64) ([]stats.ActivityEvent, error) {
	f.activitySince = append(f.activitySince, sinceEpoch)
	if f.activityErr != nil {
		return nil, f.activityErr
	}
	var fresh []stats.ActivityEvent
	for _, ev := range f.events {
		if ev.Date > sinceEpoch {
			fresh = append(fresh, ev)
		}
	}
	return fresh, nil
}

func (f *fakeStats) ScoresFeed(ctx context.Context, sinceEpoch int64, player, platform string) ([]stats.Match, error) {
	f.scoresSince = append(f.scoresSince, sinceEpoch)
	var fresh []stats.Match
	for _, m := range f.matches {
		if m.UTCStartSeconds > sinceEpoch {
			fresh = append(fresh, m)
		}
	}
	return fresh, nil
}

// fakeClock is an adjustable clock for feed gate tests.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

// slashCommand builds an update whose whole first token is a command span.
func slashCommand(id int, chatID, userID int64, text string) Update {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return Update{
		ID:     id,
		ChatID: chatID,
		UserID: userID,
		Text:   text,
		Entities: []Entity{
			{Type: EntityTypeBotCommand, Offset: 0, Length: length},
		},
	}
}
