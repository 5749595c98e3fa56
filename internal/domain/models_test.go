package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(User{}).TableName():         "users",
		(Friendship{}).TableName():   "friendships",
		(Message{}).TableName():      "messages",
		(Notification{}).TableName(): "notifications",
		(LinkCode{}).TableName():     "link_codes",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestUser_IsLinked(t *testing.T) {
	empty := ""
	ext := "ext-1"
	if (User{}).IsLinked() {
		t.Fatalf("nil external id should not be linked")
	}
	if (User{ExternalID: &empty}).IsLinked() {
		t.Fatalf("empty external id should not be linked")
	}
	if !(User{ExternalID: &ext}).IsLinked() {
		t.Fatalf("expected linked user")
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&User{}, &Friendship{}, &Message{}, &Notification{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&User{}, &Friendship{}, &Message{}, &Notification{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&User{}, "ux_users_external_id") {
		t.Fatalf("expected unique index ux_users_external_id on users")
	}
	if !m.HasIndex(&Friendship{}, "ux_friendship_pair") {
		t.Fatalf("expected unique index ux_friendship_pair on friendships")
	}
	if !m.HasIndex(&Message{}, "idx_conversation") {
		t.Fatalf("expected index idx_conversation on messages")
	}
	if !m.HasIndex(&Notification{}, "idx_user_notifications") {
		t.Fatalf("expected index idx_user_notifications on notifications")
	}

	now := time.Now().UTC()
	u1 := &User{Username: "alice"}
	u2 := &User{Username: "bob"}
	if err := db.Create(u1).Error; err != nil {
		t.Fatalf("insert u1: %v", err)
	}
	if err := db.Create(u2).Error; err != nil {
		t.Fatalf("insert u2: %v", err)
	}

	// two users cannot share one external id
	ext := "ext-1"
	if err := db.Model(u1).Update("external_id", ext).Error; err != nil {
		t.Fatalf("link u1: %v", err)
	}
	if err := db.Model(u2).Update("external_id", ext).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on users.external_id")
	}

	msg := &Message{SenderID: u1.ID, ReceiverID: u2.ID, Content: "hi", SentAt: now}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
	n := &Notification{UserID: u2.ID, Title: "t", Message: "m", Type: "message.sent", CreatedAt: now}
	if err := db.Create(n).Error; err != nil {
		t.Fatalf("insert notification: %v", err)
	}

	// CASCADE: deleting the receiver removes their messages and notifications
	if err := db.Delete(&User{}, u2.ID).Error; err != nil {
		t.Fatalf("delete u2: %v", err)
	}
	var cnt int64
	if err := db.Model(&Message{}).Where("receiver_id = ?", u2.ID).Count(&cnt).Error; err != nil || cnt != 0 {
		t.Fatalf("expected messages to cascade-delete, count=%d err=%v", cnt, err)
	}
	if err := db.Model(&Notification{}).Where("user_id = ?", u2.ID).Count(&cnt).Error; err != nil || cnt != 0 {
		t.Fatalf("expected notifications to cascade-delete, count=%d err=%v", cnt, err)
	}
}
