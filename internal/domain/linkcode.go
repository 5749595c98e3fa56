package domain

import "time"

// LinkCode is a one-time code binding a website account to a game identity.
// A user holds at most one code at a time; the code itself is globally
// unique at the storage level so a submitted code resolves to one owner.
type LinkCode struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"type:varchar(16);not null;uniqueIndex:ux_link_codes_code"`
	UserID    uint      `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`

	User User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName implements the GORM tabler interface.
func (LinkCode) TableName() string { return "link_codes" }

// Expired reports whether the code is no longer redeemable at now.
func (l LinkCode) Expired(now time.Time) bool { return !now.Before(l.ExpiresAt) }
