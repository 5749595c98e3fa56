package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/flamewall/realtime/internal/auth"
	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/http/middleware"
	"github.com/flamewall/realtime/internal/repo"
	"github.com/flamewall/realtime/internal/services"
)

// ---------- test plumbing ----------

var testSecret = []byte("handlers-secret")

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func mkUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, name)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func tokenFor(t *testing.T, id uint) string {
	t.Helper()
	tok, err := auth.Issue(testSecret, id, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// mount registers the handlers the same way the router does.
func mount(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api/v1", middleware.BearerAuth(testSecret))
	api.POST("/linking/generate-code", h.GenerateLinkCode)
	api.GET("/notifications", h.ListNotifications)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)
	api.POST("/notifications/read-all", h.MarkAllNotificationsRead)
	api.POST("/notifications/read-by-link", h.MarkNotificationsReadByLink)
	api.GET("/messages/conversation/:otherUserId", h.GetConversation)
	api.POST("/friendships/requests", h.RequestFriendship)
	api.POST("/friendships/requests/:id/accept", h.AcceptFriendship)
	return r
}

type fixture struct {
	db *gorm.DB
	r  *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	h := New(
		&services.LinkingService{DB: db},
		&services.NotificationService{DB: db},
		&services.MessageService{DB: db},
		&services.FriendshipService{DB: db},
	)
	return &fixture{db: db, r: mount(h)}
}

func (f *fixture) do(t *testing.T, method, path string, as uint, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if as != 0 {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, as))
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	return er
}

// ---------- helpers ----------

func Test_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		query          string
		page, pageSize int
	}{
		{"", 1, 50},
		{"?page=-3&page_size=9999", 1, 200},
		{"?page=2&page_size=0", 2, 50},
		{"?page=x&page_size=10", 1, 10},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/"+tc.query, nil)
		p, ps := clampPagination(c)
		if p != tc.page || ps != tc.pageSize {
			t.Fatalf("%q: got %d,%d want %d,%d", tc.query, p, ps, tc.page, tc.pageSize)
		}
	}
}

func Test_newPagination(t *testing.T) {
	p := newPagination(1, 2, 5)
	if p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("unexpected pagination %+v", p)
	}
	p = newPagination(3, 2, 5)
	if p.HasNext {
		t.Fatalf("last page must not have next: %+v", p)
	}
}

func Test_userID_MissingWrites401(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := userID(c); ok {
		t.Fatalf("expected no user")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRoutes_RequireBearer(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/notifications", 0, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestPathIDs_Validated(t *testing.T) {
	f := newFixture(t)
	u := mkUser(t, f.db, "alice")
	for _, p := range []string{
		"/api/v1/notifications/abc/read",
		"/api/v1/notifications/0/read",
		"/api/v1/friendships/requests/-1/accept",
	} {
		if w := f.do(t, http.MethodPost, p, u.ID, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", p, w.Code)
		}
	}
	if w := f.do(t, http.MethodGet, "/api/v1/messages/conversation/zero", u.ID, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("conversation: status = %d, want 400", w.Code)
	}
}

// ---------- failure stubs ----------

var errBoom = errors.New("boom")

type brokenServices struct{}

func (brokenServices) GenerateCode(context.Context, uint) (*domain.LinkCode, error) {
	return nil, errBoom
}
func (brokenServices) List(context.Context, uint, int) ([]domain.Notification, error) {
	return nil, errBoom
}
func (brokenServices) MarkRead(context.Context, uint, uint) error { return errBoom }
func (brokenServices) MarkAllRead(context.Context, uint) (int64, error) {
	return 0, errBoom
}
func (brokenServices) MarkReadByLink(context.Context, uint, string) (int64, error) {
	return 0, errBoom
}
func (brokenServices) Unread(context.Context, uint) (int64, *time.Time, error) {
	return 0, nil, errBoom
}
func (brokenServices) Conversation(context.Context, uint, uint, int, int) ([]domain.Message, int64, error) {
	return nil, 0, errBoom
}
func (brokenServices) Request(context.Context, uint, uint) (*domain.Friendship, error) {
	return nil, errBoom
}
func (brokenServices) Accept(context.Context, uint, uint) (*domain.Friendship, error) {
	return nil, errBoom
}

func TestHandlers_ServiceFailuresAre500(t *testing.T) {
	b := brokenServices{}
	f := &fixture{r: mount(New(b, b, b, b))}

	cases := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/api/v1/linking/generate-code", nil},
		{http.MethodGet, "/api/v1/notifications", nil},
		{http.MethodPost, "/api/v1/notifications/1/read", nil},
		{http.MethodPost, "/api/v1/notifications/read-all", nil},
		{http.MethodPost, "/api/v1/notifications/read-by-link", ReadByLinkRequest{Link: "/x"}},
		{http.MethodGet, "/api/v1/messages/conversation/2", nil},
		{http.MethodPost, "/api/v1/friendships/requests", FriendRequest{ReceiverID: 2}},
		{http.MethodPost, "/api/v1/friendships/requests/1/accept", nil},
	}
	for _, tc := range cases {
		w := f.do(t, tc.method, tc.path, 1, tc.body)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s %s: status = %d, want 500", tc.method, tc.path, w.Code)
		}
		if er := decodeErr(t, w); er.RequestID == "" || er.Message == errBoom.Error() {
			t.Fatalf("%s %s: unexpected envelope %+v", tc.method, tc.path, er)
		}
	}
}
