package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s, err := New(db)
	require.NoError(t, err)
	return s
}

func TestCreateAccount(t *testing.T) {
	s := newTestStore(t)

	account, err := s.CreateAccount("soldier", "hunter2", 100, 200)
	require.NoError(t, err)

	assert.NotZero(t, account.ID)
	assert.Equal(t, "soldier", account.CodUser)
	assert.Len(t, account.SecretToken, 32)

	// Tokens are unique per account.
	other, err := s.CreateAccount("ghost", "pass", 101, 201)
	require.NoError(t, err)
	assert.NotEqual(t, account.SecretToken, other.SecretToken)
}

func TestEnsureAccount(t *testing.T) {
	s := newTestStore(t)

	first, err := s.EnsureAccount("soldier", "hunter2", 100, 200)
	require.NoError(t, err)

	// Second call with the same user returns the existing row untouched.
	second, err := s.EnsureAccount("soldier", "other-password", 999, 999)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "hunter2", second.CodPassword)
	assert.Equal(t, int64(100), second.TelegramChatID)
}

func TestAccountByChatID_Direct(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateAccount("soldier", "hunter2", 100, 200)
	require.NoError(t, err)

	account, err := s.AccountByChatID(100)
	require.NoError(t, err)
	assert.Equal(t, created.ID, account.ID)
}

func TestAccountByChatID_ThroughLinkedGroup(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateAccount("soldier", "hunter2", 100, 200)
	require.NoError(t, err)

	_, err = s.CreateGroup(-4200, created.ID)
	require.NoError(t, err)

	account, err := s.AccountByChatID(-4200)
	require.NoError(t, err)
	assert.Equal(t, created.ID, account.ID)
}

func TestAccountByChatID_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AccountByChatID(12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountByUserID(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateAccount("soldier", "hunter2", 100, 200)
	require.NoError(t, err)

	account, err := s.AccountByUserID(200)
	require.NoError(t, err)
	assert.Equal(t, created.ID, account.ID)

	_, err = s.AccountByUserID(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountByToken(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateAccount("soldier", "hunter2", 100, 200)
	require.NoError(t, err)

	account, err := s.AccountByToken(created.SecretToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, account.ID)

	_, err = s.AccountByToken("bogus")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateGroup_Idempotent(t *testing.T) {
	s := newTestStore(t)
	account, err := s.CreateAccount("soldier", "hunter2", 100, 200)
	require.NoError(t, err)

	first, err := s.CreateGroup(-4200, account.ID)
	require.NoError(t, err)

	// Linking the same group again keeps the existing row.
	second, err := s.CreateGroup(-4200, account.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TelegramGroupID, second.TelegramGroupID)

	groups, err := s.GroupsByAccount(account.ID)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestSetGroupFeeds(t *testing.T) {
	s := newTestStore(t)
	account, err := s.CreateAccount("soldier", "hunter2", 100, 200)
	require.NoError(t, err)
	_, err = s.CreateGroup(-4200, account.ID)
	require.NoError(t, err)

	require.NoError(t, s.SetGroupFeeds(-4200, []string{"activity_feeds", "scores_feeds"}))

	groups, err := s.GroupsByAccount(account.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "activity_feeds,scores_feeds", groups[0].Feeds)

	// Clearing the set empties the column.
	require.NoError(t, s.SetGroupFeeds(-4200, nil))
	groups, err = s.GroupsByAccount(account.ID)
	require.NoError(t, err)
	assert.Empty(t, groups[0].Feeds)
}

func TestSetGroupFeeds_UnlinkedChatIsNoOp(t *testing.T) {
	s := newTestStore(t)

	assert.NoError(t, s.SetGroupFeeds(777, []string{"activity_feeds"}))
}

func TestAccountsWithActiveFeeds(t *testing.T) {
	s := newTestStore(t)

	active, err := s.CreateAccount("soldier", "hunter2", 100, 200)
	require.NoError(t, err)
	idle, err := s.CreateAccount("ghost", "pass", 101, 201)
	require.NoError(t, err)

	_, err = s.CreateGroup(-4200, active.ID)
	require.NoError(t, err)
	_, err = s.CreateGroup(-4300, idle.ID)
	require.NoError(t, err)
	require.NoError(t, s.SetGroupFeeds(-4200, []string{"scores_feeds"}))

	accounts, err := s.AccountsWithActiveFeeds()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, active.ID, accounts[0].ID)
}

func TestFriends(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateFriend(-4200, "Ghost", "psn")
	require.NoError(t, err)
	_, err = s.CreateFriend(-4200, "Soap", "battle")
	require.NoError(t, err)
	_, err = s.CreateFriend(-9999, "Price", "xbl")
	require.NoError(t, err)

	friends, err := s.FriendsByGroup(-4200)
	require.NoError(t, err)
	require.Len(t, friends, 2)
	assert.Equal(t, "Ghost", friends[0].PlayerName)
	assert.Equal(t, "psn", friends[0].Platform)

	empty, err := s.FriendsByGroup(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
