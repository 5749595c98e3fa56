package realtime

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/flamewall/realtime/internal/auth"
	"github.com/flamewall/realtime/internal/domain"
)

// PluginKeyHeader carries the shared secret of the game-server plugin.
const PluginKeyHeader = "X-API-Key"

// TokenQueryParam carries the bearer token for browser sockets, which cannot
// set request headers.
const TokenQueryParam = "token"

// Handshake rejection reasons. None of them is ever sent to the client.
var (
	ErrBannedUser  = errors.New("user is banned")
	ErrUnknownUser = errors.New("token subject does not exist")
)

// UserLookup resolves a token subject.
type UserLookup interface {
	Get(ctx context.Context, id uint) (*domain.User, error)
}

// Authenticator classifies an upgrade request as a plugin or a user.
type Authenticator struct {
	PluginSecret []byte
	JWTSecret    []byte
	Users        UserLookup
}

// Authenticate inspects the handshake and returns the principal, or an error
// that must terminate the connection.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (Principal, error) {
	if key := r.Header.Get(PluginKeyHeader); key != "" && a.pluginKeyMatches(key) {
		return PluginPrincipal(), nil
	}

	token := strings.TrimSpace(r.URL.Query().Get(TokenQueryParam))
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		return Principal{}, auth.ErrMissingToken
	}
	userID, err := auth.Verify(a.JWTSecret, token)
	if err != nil {
		return Principal{}, err
	}

	u, err := a.Users.Get(ctx, userID)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnknownUser, err)
	}
	if u.IsBanned {
		return Principal{}, ErrBannedUser
	}
	return UserPrincipal(*u), nil
}

func (a *Authenticator) pluginKeyMatches(key string) bool {
	if len(a.PluginSecret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), a.PluginSecret) == 1
}
