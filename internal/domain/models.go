// Package domain defines the persistence models for users, friendships,
// direct messages and notifications. These types are mapped with GORM and
// are the records the realtime gateway reads and mutates through its
// collaborators.
package domain

import (
	"time"
)

// DeletedPlaceholder replaces the visible content of a soft-deleted message.
const DeletedPlaceholder = "This message has been deleted."

// User is a website account. ExternalID and ExternalUsername carry the
// linked game identity and are nil until the account-linking flow succeeds.
//
// Fields:
//   - IsBanned: banned users are rejected at socket handshake.
//   - ExternalID: stable game-side identifier; unique across users.
//   - IsGameOnline: last status reported by the game-server plugin.
type User struct {
	ID               uint      `json:"id"                          gorm:"primaryKey"`
	Username         string    `json:"username"                    gorm:"type:varchar(64);not null;uniqueIndex"`
	IsBanned         bool      `json:"is_banned"                   gorm:"not null;default:false"`
	ExternalID       *string   `json:"external_id,omitempty"       gorm:"type:varchar(64);uniqueIndex:ux_users_external_id"`
	ExternalUsername *string   `json:"external_username,omitempty" gorm:"type:varchar(64);index"`
	IsGameOnline     bool      `json:"is_game_online"              gorm:"not null;default:false"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// IsLinked reports whether a game identity is bound to the account.
func (u User) IsLinked() bool { return u.ExternalID != nil && *u.ExternalID != "" }

// Friendship statuses.
const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
)

// Friendship is a directed request between two users. Two users are friends
// when a row in either direction has status accepted.
type Friendship struct {
	ID          uint      `json:"id"           gorm:"primaryKey"`
	RequesterID uint      `json:"requester_id" gorm:"not null;uniqueIndex:ux_friendship_pair,priority:1"`
	ReceiverID  uint      `json:"receiver_id"  gorm:"not null;uniqueIndex:ux_friendship_pair,priority:2;index"`
	Status      string    `json:"status"       gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','accepted')"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Requester User `json:"-" gorm:"foreignKey:RequesterID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Receiver  User `json:"-" gorm:"foreignKey:ReceiverID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friendships" }

// Message is a direct message between two users. Edits mutate Content in
// place; deletion is soft: IsDeleted is set and Content is replaced with
// DeletedPlaceholder. Deleted is terminal for content mutation.
type Message struct {
	ID         uint       `json:"id"                  gorm:"primaryKey"`
	SenderID   uint       `json:"sender_id"           gorm:"not null;index:idx_conversation,priority:1"`
	ReceiverID uint       `json:"receiver_id"         gorm:"not null;index:idx_conversation,priority:2"`
	Content    string     `json:"content"             gorm:"type:text;not null"`
	ParentID   *uint      `json:"parent_id,omitempty" gorm:"index"`
	IsDeleted  bool       `json:"is_deleted"          gorm:"not null;default:false"`
	SentAt     time.Time  `json:"sent_at"             gorm:"not null;index:idx_conversation,priority:3"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`

	Sender   User `json:"-" gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Receiver User `json:"-" gorm:"foreignKey:ReceiverID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Notification is a persisted, user-scoped alert produced from a domain event.
type Notification struct {
	ID        uint      `json:"id"             gorm:"primaryKey"`
	UserID    uint      `json:"user_id"        gorm:"not null;index:idx_user_notifications,priority:1"`
	Title     string    `json:"title"          gorm:"type:varchar(255);not null"`
	Message   string    `json:"message"        gorm:"type:text;not null"`
	Type      string    `json:"type"           gorm:"type:varchar(64);not null"`
	Link      *string   `json:"link,omitempty" gorm:"type:varchar(255);index"`
	Read      bool      `json:"read"           gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"     gorm:"index:idx_user_notifications,priority:2"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }
