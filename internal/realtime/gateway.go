package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/flamewall/realtime/internal/config"
	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/services"
)

// Client to server commands.
const (
	CmdSendMessage           = "sendMessage"
	CmdEditMessage           = "editMessage"
	CmdDeleteMessage         = "deleteMessage"
	CmdStartViewingChat      = "startViewingChat"
	CmdStopViewingChat       = "stopViewingChat"
	CmdLinkAccount           = "linkAccount"
	CmdMinecraftPlayerStatus = "minecraftPlayerStatus"
	CmdInGamePrivateMessage  = "inGamePrivateMessage"
	CmdPing                  = "ping"
)

const writeWait = 10 * time.Second

// Linker redeems account-link codes submitted by the plugin.
type Linker interface {
	VerifyAndLink(ctx context.Context, code, externalID, externalUsername string) (*domain.User, error)
}

// GameStatus records plugin-reported online state.
type GameStatus interface {
	SetGameOnline(ctx context.Context, externalID string, online bool) (*domain.User, error)
}

// Command payloads.
type (
	SendMessagePayload struct {
		RecipientID     uint   `json:"recipientId"`
		Content         string `json:"content"`
		ParentMessageID *uint  `json:"parentMessageId,omitempty"`
	}
	EditMessagePayload struct {
		MessageID uint   `json:"messageId"`
		Content   string `json:"content"`
	}
	DeleteMessagePayload struct {
		MessageID uint `json:"messageId"`
	}
	ViewingPayload struct {
		OtherUserID uint `json:"otherUserId"`
	}
	LinkAccountPayload struct {
		Code             string `json:"code"`
		ExternalID       string `json:"externalId"`
		ExternalUsername string `json:"externalUsername"`
	}
	PlayerStatusPayload struct {
		ExternalID string `json:"externalId"`
		IsOnline   bool   `json:"isOnline"`
	}
	InGameMessagePayload struct {
		SenderExternalID  string `json:"senderExternalId"`
		RecipientUsername string `json:"recipientUsername"`
		Content           string `json:"content"`
	}
)

// Server to client payloads that are not domain records.
type (
	LinkStatus struct {
		Success           bool   `json:"success"`
		ExternalID        string `json:"externalId,omitempty"`
		WebsiteUsername   string `json:"websiteUsername,omitempty"`
		MinecraftUsername string `json:"minecraftUsername,omitempty"`
		Error             string `json:"error,omitempty"`
	}
	UserStatusUpdate struct {
		UserID       uint `json:"userId"`
		IsGameOnline bool `json:"isGameOnline"`
	}
	ErrorPayload struct {
		Message string `json:"message"`
	}
)

// Gateway upgrades authenticated HTTP requests to sockets and dispatches
// their commands.
type Gateway struct {
	Auth     *Authenticator
	Hub      *Hub
	Presence *Registry
	Relay    *Relay
	Linker   Linker
	Status   GameStatus

	cfg      config.SocketConfig
	upgrader websocket.Upgrader
}

// NewGateway returns a gateway tuned by cfg. Browser origins are checked
// against allowedOrigins; an empty list allows all. Requests without an
// Origin header (the plugin) are always allowed.
func NewGateway(cfg config.SocketConfig, allowedOrigins []string) *Gateway {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	return &Gateway{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// ServeWS authenticates the handshake, upgrades it and blocks until the
// connection ends. Rejected handshakes get 401 with an empty body.
func (g *Gateway) ServeWS(c *gin.Context) {
	// in-flight commands run to completion even if the socket goes away
	ctx := context.WithoutCancel(c.Request.Context())

	p, err := g.Auth.Authenticate(ctx, c.Request)
	if err != nil {
		wsRejected.Inc()
		log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("socket handshake rejected")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	// headers set by middleware ride on the 101 response
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, c.Writer.Header())
	if err != nil {
		log.Info().Err(err).Msg("socket upgrade failed")
		return
	}

	conn := NewConn(uuid.NewString(), p, g.cfg.SendBuffer)
	conn.handshake = trace.LinkFromContext(c.Request.Context())
	g.attach(conn)
	defer g.detach(conn)

	conn.Logger().Info().Msg("socket connected")
	go g.writePump(ws, conn)
	g.readPump(ctx, ws, conn)
}

func (g *Gateway) attach(conn *Conn) {
	wsConnections.WithLabelValues(conn.Principal.Kind().String()).Inc()
	if conn.Principal.IsPlugin() {
		g.Hub.Join(PluginRoom, conn)
		return
	}
	uid := conn.Principal.UserID()
	g.Hub.Join(UserRoom(uid), conn)
	g.Presence.Register(uid, conn.ID)
}

func (g *Gateway) detach(conn *Conn) {
	conn.Close()
	wsConnections.WithLabelValues(conn.Principal.Kind().String()).Dec()
	if conn.Principal.IsPlugin() {
		g.Hub.Leave(PluginRoom, conn)
	} else {
		uid := conn.Principal.UserID()
		g.Hub.Leave(UserRoom(uid), conn)
		g.Presence.Unregister(uid, conn.ID)
	}
	conn.Logger().Info().Msg("socket disconnected")
}

func (g *Gateway) readPump(ctx context.Context, ws *websocket.Conn, conn *Conn) {
	pongWait := 2 * g.cfg.PingInterval
	if g.cfg.MaxFrame > 0 {
		ws.SetReadLimit(g.cfg.MaxFrame)
	}
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	limit := rate.Inf
	if g.cfg.RateRPS > 0 {
		limit = rate.Limit(g.cfg.RateRPS)
	}
	burst := g.cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				conn.Logger().Debug().Msg("peer closed")
			case errors.As(err, &ne) && ne.Timeout():
				conn.Logger().Info().Msg("read timeout")
			default:
				conn.Logger().Debug().Err(err).Msg("read failed")
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			wsCommands.WithLabelValues("unknown", "invalid").Inc()
			conn.Logger().Debug().Int("len", len(data)).Msg("malformed frame")
			continue
		}
		if !limiter.Allow() {
			wsCommands.WithLabelValues(commandLabel(f.Event), "limited").Inc()
			conn.Logger().Warn().Str("command", f.Event).Msg("command rate limited")
			continue
		}
		g.Dispatch(ctx, conn, f)
	}
}

func (g *Gateway) writePump(ws *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = ws.Close()
	}()
	for {
		select {
		case <-conn.Done():
			return
		case b := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				conn.Logger().Debug().Err(err).Msg("write failed")
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// Dispatch runs one command to completion on behalf of conn. Each command
// is its own trace root, linked to the handshake request.
func (g *Gateway) Dispatch(ctx context.Context, conn *Conn, f Frame) {
	label := commandLabel(f.Event)
	opts := []trace.SpanStartOption{
		trace.WithNewRoot(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("ws.command", label),
			attribute.String("ws.conn_id", conn.ID),
		),
	}
	if conn.handshake.SpanContext.IsValid() {
		opts = append(opts, trace.WithLinks(conn.handshake))
	}
	ctx, span := otel.Tracer("realtime/Gateway").Start(ctx, "ws "+label, opts...)
	defer span.End()

	outcome := g.dispatch(ctx, conn, f)
	span.SetAttributes(attribute.String("ws.outcome", outcome))
	if outcome == "error" {
		span.SetStatus(codes.Error, "command failed")
	}
	wsCommands.WithLabelValues(label, outcome).Inc()
}

func commandLabel(event string) string {
	switch event {
	case CmdSendMessage, CmdEditMessage, CmdDeleteMessage, CmdStartViewingChat, CmdStopViewingChat,
		CmdLinkAccount, CmdMinecraftPlayerStatus, CmdInGamePrivateMessage, CmdPing:
		return event
	}
	return "unknown"
}

func (g *Gateway) dispatch(ctx context.Context, conn *Conn, f Frame) string {
	l := conn.Logger().With().Str("command", f.Event).Logger()

	switch f.Event {
	case CmdPing:
		conn.Emit("pong", struct{}{})
		return "ok"
	case CmdSendMessage, CmdEditMessage, CmdDeleteMessage, CmdStartViewingChat, CmdStopViewingChat:
		if !conn.Principal.IsUser() {
			l.Warn().Msg("user command from non-user connection ignored")
			return "ignored"
		}
	case CmdLinkAccount, CmdMinecraftPlayerStatus, CmdInGamePrivateMessage:
		if !conn.Principal.IsPlugin() {
			l.Warn().Msg("plugin command from non-plugin connection ignored")
			return "ignored"
		}
	default:
		l.Debug().Msg("unknown command ignored")
		return "ignored"
	}

	uid := conn.Principal.UserID()
	switch f.Event {
	case CmdSendMessage:
		var p SendMessagePayload
		if !decode(f, &p, &l) {
			return "invalid"
		}
		if _, err := g.Relay.Send(ctx, uid, p.RecipientID, p.Content, p.ParentMessageID); err != nil {
			l.Info().Err(err).Uint("recipient_id", p.RecipientID).Msg("message dropped")
			return "dropped"
		}

	case CmdEditMessage:
		var p EditMessagePayload
		if !decode(f, &p, &l) {
			conn.Emit(EventError, ErrorPayload{Message: "Failed to edit message."})
			return "invalid"
		}
		if _, err := g.Relay.Edit(ctx, uid, p.MessageID, p.Content); err != nil {
			l.Error().Err(err).Uint("message_id", p.MessageID).Msg("edit failed")
			conn.Emit(EventError, ErrorPayload{Message: commandError(err)})
			return "error"
		}

	case CmdDeleteMessage:
		var p DeleteMessagePayload
		if !decode(f, &p, &l) {
			conn.Emit(EventError, ErrorPayload{Message: "Failed to delete message."})
			return "invalid"
		}
		if _, err := g.Relay.Delete(ctx, uid, p.MessageID); err != nil {
			l.Error().Err(err).Uint("message_id", p.MessageID).Msg("delete failed")
			conn.Emit(EventError, ErrorPayload{Message: commandError(err)})
			return "error"
		}

	case CmdStartViewingChat:
		var p ViewingPayload
		if !decode(f, &p, &l) || p.OtherUserID == 0 {
			return "invalid"
		}
		g.Presence.SetViewing(uid, p.OtherUserID)

	case CmdStopViewingChat:
		g.Presence.ClearViewing(uid)

	case CmdLinkAccount:
		var p LinkAccountPayload
		if !decode(f, &p, &l) {
			conn.Emit(EventLinkStatus, LinkStatus{Success: false, Error: "Invalid payload."})
			return "invalid"
		}
		return g.linkAccount(ctx, conn, p)

	case CmdMinecraftPlayerStatus:
		var p PlayerStatusPayload
		if !decode(f, &p, &l) {
			return "invalid"
		}
		u, err := g.Status.SetGameOnline(ctx, p.ExternalID, p.IsOnline)
		if err != nil {
			l.Info().Err(err).Str("external_id", p.ExternalID).Msg("player status not applied")
			return "error"
		}
		g.Hub.Emit(UserRoom(u.ID), EventUserStatusUpdate, UserStatusUpdate{UserID: u.ID, IsGameOnline: u.IsGameOnline})

	case CmdInGamePrivateMessage:
		var p InGameMessagePayload
		if !decode(f, &p, &l) {
			return "invalid"
		}
		if _, err := g.Relay.SendFromGame(ctx, p.SenderExternalID, p.RecipientUsername, p.Content); err != nil {
			l.Info().Err(err).Str("sender_external_id", p.SenderExternalID).Msg("in-game message dropped")
			return "dropped"
		}
	}
	return "ok"
}

func (g *Gateway) linkAccount(ctx context.Context, conn *Conn, p LinkAccountPayload) string {
	u, err := g.Linker.VerifyAndLink(ctx, p.Code, p.ExternalID, p.ExternalUsername)
	if err != nil {
		conn.Logger().Info().Err(err).Str("external_id", p.ExternalID).Msg("link attempt failed")
		conn.Emit(EventLinkStatus, LinkStatus{
			Success:    false,
			ExternalID: p.ExternalID,
			Error:      linkError(err),
		})
		return "error"
	}

	var extName string
	if u.ExternalUsername != nil {
		extName = *u.ExternalUsername
	}
	var extID string
	if u.ExternalID != nil {
		extID = *u.ExternalID
	}
	conn.Emit(EventLinkStatus, LinkStatus{
		Success:         true,
		ExternalID:      extID,
		WebsiteUsername: u.Username,
	})
	g.Hub.Emit(UserRoom(u.ID), EventLinkStatus, LinkStatus{Success: true, MinecraftUsername: extName})
	return "ok"
}

func linkError(err error) string {
	switch {
	case errors.Is(err, services.ErrLinkCodeNotFound):
		return "Invalid or expired code."
	case errors.Is(err, services.ErrExternalIDTaken):
		return "This game account is already linked to another user."
	case errors.Is(err, services.ErrUserNotFound):
		return "User not found."
	}
	return "Linking failed."
}

func decode(f Frame, dst any, l *zerolog.Logger) bool {
	if len(f.Data) == 0 {
		f.Data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		l.Debug().Err(err).Msg("malformed payload")
		return false
	}
	return true
}
