package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/pscheid92/forumcast/internal/domain"
	"github.com/pscheid92/forumcast/internal/hub"
	"github.com/pscheid92/forumcast/internal/platform/correlation"
)

const wsReadLimit = 4096

// Operation names accepted on the websocket.
const (
	opUserJoin      = "UserJoin"
	opCommunityJoin = "CommunityJoin"
	opModJoin       = "ModJoin"
	opPostJoin      = "PostJoin"
	opLeave         = "Leave"
)

// Error codes sent back in operation replies.
const (
	codeNotLoggedIn       = "not_logged_in"
	codeNotAuthorized     = "not_authorized"
	codeInvalidRoom       = "invalid_room"
	codeUnknownConnection = "unknown_connection"
	codeUnknownOp         = "unknown_op"
	codeBadRequest        = "bad_request"
	codeRateLimit         = "rate_limit_error"
	codeInternal          = "internal_error"
)

type clientFrame struct {
	Op   string    `json:"op"`
	Data frameData `json:"data"`
}

type frameData struct {
	Auth        string          `json:"auth,omitempty"`
	UserID      int64           `json:"user_id,omitempty"`
	CommunityID int64           `json:"community_id,omitempty"`
	PostID      int64           `json:"post_id,omitempty"`
	Room        *domain.RoomKey `json:"room,omitempty"`
}

type serverFrame struct {
	Op    string `json:"op"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type leaveAck struct {
	Left bool `json:"left"`
}

// wsConnection is the per-connection state the read loop carries.
type wsConnection struct {
	id       domain.ConnectionID
	identity *domain.Identity
	writer   *hub.ConnWriter
	limiter  *rate.Limiter
}

func (s *Server) handleWebSocket(c echo.Context) error {
	identity, err := s.caller(c)
	if err != nil {
		return err
	}

	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		slog.WarnContext(c.Request().Context(), "Connection rejected", "ip", ip, "reason", reason)
		status := http.StatusTooManyRequests
		if reason == LimitReasonGlobal {
			status = http.StatusServiceUnavailable
		}
		return echo.NewHTTPError(status, string(reason))
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "error", err)
		return nil
	}
	conn.SetReadLimit(wsReadLimit)

	id := uuid.New()
	ctx := correlation.WithConnection(c.Request().Context(), id.String())

	var userID int64
	if identity != nil {
		userID = identity.UserID
	}

	writer := hub.NewConnWriter(conn, s.clock, s.config.ConnectionQueueSize)
	if err := s.hub.Register(ctx, id, writer, userID); err != nil {
		slog.ErrorContext(ctx, "Failed to register connection", "error", err)
		writer.Close("server unavailable")
		writer.Wait()
		return nil
	}
	slog.InfoContext(ctx, "Connection opened", "user_id", userID, "ip", ip)

	wc := &wsConnection{
		id:       id,
		identity: identity,
		writer:   writer,
		limiter:  rate.NewLimiter(rate.Limit(s.config.WSMessagesPerSecond), s.config.WSMessageBurst),
	}
	s.readLoop(ctx, conn, wc)

	s.hub.Unregister(id)
	writer.Close("")
	writer.Wait()
	slog.InfoContext(ctx, "Connection closed")

	return nil
}

// readLoop blocks until the peer goes away or the read deadline passes. Reading also drives
// the pong handler that keeps the deadline moving.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, wc *wsConnection) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "Connection read failed", "error", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.reply(ctx, wc, serverFrame{Error: codeBadRequest})
			continue
		}
		if !wc.limiter.AllowN(s.clock.Now(), 1) {
			s.reply(ctx, wc, serverFrame{Op: frame.Op, Error: codeRateLimit})
			continue
		}

		s.reply(ctx, wc, s.dispatch(ctx, wc, frame))
	}
}

func (s *Server) dispatch(ctx context.Context, wc *wsConnection, frame clientFrame) serverFrame {
	caller := wc.identity
	if frame.Data.Auth != "" {
		resolved, err := s.identity.Resolve(ctx, frame.Data.Auth)
		if err != nil {
			return serverFrame{Op: frame.Op, Error: opErrorCode(ctx, frame.Op, err)}
		}
		caller = resolved
	}

	var (
		ack domain.JoinAck
		err error
	)
	switch frame.Op {
	case opUserJoin:
		ack, err = s.rooms.UserJoin(ctx, caller, frame.Data.UserID, wc.id)
	case opCommunityJoin:
		ack, err = s.rooms.CommunityJoin(ctx, caller, frame.Data.CommunityID, wc.id)
	case opModJoin:
		ack, err = s.rooms.ModJoin(ctx, caller, frame.Data.CommunityID, wc.id)
	case opPostJoin:
		ack, err = s.rooms.PostJoin(ctx, caller, frame.Data.PostID, wc.id)
	case opLeave:
		if frame.Data.Room == nil {
			return serverFrame{Op: frame.Op, Error: codeBadRequest}
		}
		if err := s.rooms.Leave(ctx, *frame.Data.Room, wc.id); err != nil {
			return serverFrame{Op: frame.Op, Error: opErrorCode(ctx, frame.Op, err)}
		}
		return serverFrame{Op: frame.Op, Data: leaveAck{Left: true}}
	default:
		return serverFrame{Op: frame.Op, Error: codeUnknownOp}
	}
	if err != nil {
		return serverFrame{Op: frame.Op, Error: opErrorCode(ctx, frame.Op, err)}
	}
	return serverFrame{Op: frame.Op, Data: ack}
}

func (s *Server) reply(ctx context.Context, wc *wsConnection, frame serverFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode reply", "op", frame.Op, "error", err)
		return
	}
	if err := wc.writer.Send(payload); err != nil {
		slog.DebugContext(ctx, "Reply dropped", "op", frame.Op, "error", err)
	}
}

func opErrorCode(ctx context.Context, op string, err error) string {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return codeNotLoggedIn
	case errors.Is(err, domain.ErrNotAuthorized):
		return codeNotAuthorized
	case errors.Is(err, domain.ErrInvalidRoomKey):
		return codeInvalidRoom
	case errors.Is(err, domain.ErrUnknownConnection):
		return codeUnknownConnection
	default:
		slog.ErrorContext(ctx, "Operation failed", "op", op, "error", err)
		return codeInternal
	}
}
