package store

import "time"

// Account links a Telegram identity to a set of stats platform credentials.
type Account struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	CodUser        string `gorm:"size:128;not null;uniqueIndex"`
	CodPassword    string `gorm:"size:128;not null"`
	SecretToken    string `gorm:"size:64;uniqueIndex"`
	TelegramChatID int64  `gorm:"index"`
	TelegramUserID int64  `gorm:"index"`
	CreatedAt      time.Time
}

// ChatGroup links a Telegram group chat to an account. Feeds holds the
// comma-separated names of the feeds active for the group.
type ChatGroup struct {
	TelegramGroupID int64  `gorm:"primaryKey;autoIncrement:false"`
	AccountID       uint   `gorm:"not null;index"`
	Feeds           string `gorm:"size:256"`
	CreatedAt       time.Time
}

// Friend is a roster entry: a player a chat group wants stats for.
type Friend struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	TelegramGroupID int64  `gorm:"not null;index"`
	PlayerName      string `gorm:"size:128;not null"`
	Platform        string `gorm:"size:32;not null"`
	CreatedAt       time.Time
}
