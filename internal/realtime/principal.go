// Package realtime implements the socket side of the gateway: connection
// authentication, presence, duplicate suppression, room fan-out and the
// message relay.
package realtime

import "github.com/flamewall/realtime/internal/domain"

// Kind classifies an authenticated connection.
type Kind int

const (
	KindPlugin Kind = iota + 1
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindPlugin:
		return "plugin"
	case KindUser:
		return "user"
	}
	return "unauthenticated"
}

// Principal is fixed at handshake time and never changes for the lifetime of
// the connection. The zero value is unauthenticated.
type Principal struct {
	kind Kind
	user domain.User
}

// PluginPrincipal returns the principal of a game-server plugin connection.
func PluginPrincipal() Principal { return Principal{kind: KindPlugin} }

// UserPrincipal returns the principal of a browser connection for u.
func UserPrincipal(u domain.User) Principal { return Principal{kind: KindUser, user: u} }

func (p Principal) Kind() Kind     { return p.kind }
func (p Principal) IsPlugin() bool { return p.kind == KindPlugin }
func (p Principal) IsUser() bool   { return p.kind == KindUser }

// User returns the identity attached at handshake; ok is false for plugins.
func (p Principal) User() (u domain.User, ok bool) {
	return p.user, p.kind == KindUser
}

// UserID is 0 for non-user principals.
func (p Principal) UserID() uint {
	if p.kind != KindUser {
		return 0
	}
	return p.user.ID
}
