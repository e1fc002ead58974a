// Package store persists accounts, chat group links, and friend rosters
// behind a GORM repository. Production runs against MySQL; tests use an
// in-memory SQLite database.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound marks a lookup that matched no row.
var ErrNotFound = errors.New("store: not found")

// Store is the account repository.
type Store struct {
	db *gorm.DB
}

// Open connects to a MySQL database and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return New(db)
}

// New wraps an existing GORM connection and migrates the schema. Tests use
// it with an in-memory SQLite database.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Account{}, &ChatGroup{}, &Friend{}); err != nil {
		return nil, fmt.Errorf("store: auto-migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateAccount inserts an account with a freshly generated secret token.
func (s *Store) CreateAccount(codUser, codPassword string, chatID, userID int64) (*Account, error) {
	token, err := newSecretToken()
	if err != nil {
		return nil, err
	}
	account := Account{
		CodUser:        codUser,
		CodPassword:    codPassword,
		SecretToken:    token,
		TelegramChatID: chatID,
		TelegramUserID: userID,
	}
	if err := s.db.Create(&account).Error; err != nil {
		return nil, fmt.Errorf("store: create account for %s: %w", codUser, err)
	}
	return &account, nil
}

// EnsureAccount returns the account with the given stats platform user,
// creating it when missing. Used to seed the bootstrap account from the
// startup credentials.
func (s *Store) EnsureAccount(codUser, codPassword string, chatID, userID int64) (*Account, error) {
	var account Account
	err := s.db.Where("cod_user = ?", codUser).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.CreateAccount(codUser, codPassword, chatID, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup account %s: %w", codUser, err)
	}
	return &account, nil
}

// AccountByID fetches an account by primary key.
func (s *Store) AccountByID(id uint) (*Account, error) {
	var account Account
	err := s.db.First(&account, id).Error
	return wrapAccountErr(&account, err, fmt.Sprintf("id %d", id))
}

// AccountByChatID resolves the account owning a chat, either directly or
// through a linked chat group.
func (s *Store) AccountByChatID(chatID int64) (*Account, error) {
	var account Account
	err := s.db.Where("telegram_chat_id = ?", chatID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.
			Joins("JOIN chat_groups ON chat_groups.account_id = accounts.id").
			Where("chat_groups.telegram_group_id = ?", chatID).
			First(&account).Error
	}
	return wrapAccountErr(&account, err, fmt.Sprintf("chat %d", chatID))
}

// AccountByUserID fetches the account owned by a Telegram user.
func (s *Store) AccountByUserID(userID int64) (*Account, error) {
	var account Account
	err := s.db.Where("telegram_user_id = ?", userID).First(&account).Error
	return wrapAccountErr(&account, err, fmt.Sprintf("user %d", userID))
}

// AccountByToken fetches an account by its secret link token.
func (s *Store) AccountByToken(token string) (*Account, error) {
	var account Account
	err := s.db.Where("secret_token = ?", token).First(&account).Error
	return wrapAccountErr(&account, err, "token")
}

// AccountsWithActiveFeeds lists accounts that have at least one group with
// an active feed.
func (s *Store) AccountsWithActiveFeeds() ([]Account, error) {
	var accounts []Account
	err := s.db.
		Where("id IN (?)", s.db.Model(&ChatGroup{}).Select("account_id").Where("feeds <> ''")).
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("store: list feed-activated accounts: %w", err)
	}
	return accounts, nil
}

// CreateGroup links a group chat to an account. Linking an already linked
// group is a no-op returning the existing row.
func (s *Store) CreateGroup(groupID int64, accountID uint) (*ChatGroup, error) {
	group := ChatGroup{TelegramGroupID: groupID, AccountID: accountID}
	err := s.db.Where(ChatGroup{TelegramGroupID: groupID}).FirstOrCreate(&group).Error
	if err != nil {
		return nil, fmt.Errorf("store: link group %d: %w", groupID, err)
	}
	return &group, nil
}

// GroupsByAccount lists the chat groups linked to an account.
func (s *Store) GroupsByAccount(accountID uint) ([]ChatGroup, error) {
	var groups []ChatGroup
	if err := s.db.Where("account_id = ?", accountID).Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("store: list groups for account %d: %w", accountID, err)
	}
	return groups, nil
}

// SetGroupFeeds replaces the active feed set recorded for a group. A chat
// with no group row (e.g. a private chat) is left untouched.
func (s *Store) SetGroupFeeds(groupID int64, feeds []string) error {
	err := s.db.Model(&ChatGroup{}).
		Where("telegram_group_id = ?", groupID).
		Update("feeds", strings.Join(feeds, ",")).Error
	if err != nil {
		return fmt.Errorf("store: update feeds for group %d: %w", groupID, err)
	}
	return nil
}

// CreateFriend adds a roster entry for a group chat.
func (s *Store) CreateFriend(groupID int64, player, platform string) (*Friend, error) {
	friend := Friend{TelegramGroupID: groupID, PlayerName: player, Platform: platform}
	if err := s.db.Create(&friend).Error; err != nil {
		return nil, fmt.Errorf("store: add friend %s to group %d: %w", player, groupID, err)
	}
	return &friend, nil
}

// FriendsByGroup lists the roster entries of a group chat.
func (s *Store) FriendsByGroup(groupID int64) ([]Friend, error) {
	var friends []Friend
	if err := s.db.Where("telegram_group_id = ?", groupID).Find(&friends).Error; err != nil {
		return nil, fmt.Errorf("store: list friends for group %d: %w", groupID, err)
	}
	return friends, nil
}

func wrapAccountErr(account *Account, err error, what string) (*Account, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: account by %s: %w", what, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: account by %s: %w", what, err)
	}
	return account, nil
}

func newSecretToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("store: generate secret token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
