package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/bustedgame/busted-server/internal/database"
	"github.com/bustedgame/busted-server/internal/game"
	"github.com/bustedgame/busted-server/internal/middleware"
	"github.com/bustedgame/busted-server/internal/realtime"
	"github.com/bustedgame/busted-server/internal/session"
	ws "github.com/bustedgame/busted-server/internal/websocket"
)

// WebSocketHandler is the room gateway: one connection equals one seat at the
// table, with its own state machine and its own presence entry.
type WebSocketHandler struct {
	db       *database.Database
	registry *session.Registry
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(db *database.Database, registry *session.Registry) *WebSocketHandler {
	return &WebSocketHandler{
		db:       db,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origin in prod
				return true
			},
		},
	}
}

// HandleWebSocket attaches an authenticated, already-joined player to a room.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	username, _ := c.Get(middleware.UsernameKey)
	code := database.NormalizeCode(c.Param("code"))

	room, err := h.db.GetRoomByCode(code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	player, err := h.db.GetPlayer(room.ID, userID.(uuid.UUID))
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "join the room first"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := ws.NewClient(conn, player.UserID, username.(string))
	go client.WritePump()

	coord, err := h.registry.Acquire(c.Request.Context(), code)
	if err != nil {
		logrus.WithError(err).WithField("room", code).Error("room session unavailable")
		client.SendError("room session unavailable")
		conn.Close()
		return
	}
	defer h.registry.Release(code)

	machine := game.NewMachine(h.db, coord, client.UserID, client.Username)
	defer machine.Close()

	if err := machine.Load(code); err != nil {
		logrus.WithError(err).WithField("room", code).Error("room load failed")
		client.SendError("failed to load room")
		conn.Close()
		return
	}

	// The client id, not the user id, keys this connection's presence entry.
	presenceKey := client.ID.String()
	if err := coord.Track(presenceKey, realtime.PresenceRecord{
		UserID:   player.UserID,
		Username: client.Username,
		IsHost:   player.IsHost,
		JoinedAt: player.JoinedAt,
	}); err != nil {
		logrus.WithError(err).Warn("presence track failed")
	}
	defer coord.Untrack(presenceKey)

	// Forward raw events plus the refreshed state; the machine already
	// consumed the event by the time this listener runs.
	unsubEvents := coord.Subscribe(func(ev realtime.Event) {
		client.SendMessage(ws.TypeEvent, ev)
		client.SendMessage(ws.TypeState, machine.Snapshot())
	})
	defer unsubEvents()

	unsubPresence := coord.SubscribePresence(func(players []realtime.PresenceRecord) {
		client.SendMessage(ws.TypePresence, gin.H{"players": players})
	})
	defer unsubPresence()

	sess := &wsSession{machine: machine, coord: coord}

	client.SendMessage(ws.TypeState, machine.Snapshot())
	client.SendMessage(ws.TypePresence, gin.H{"players": coord.Players()})

	// ReadPump closes the connection on exit; WritePump notices on its next
	// write or ping and stops on its own.
	client.ReadPump(sess)
}

// wsSession maps protocol frames onto one connection's state machine.
type wsSession struct {
	machine *game.Machine
	coord   *session.Coordinator
}

func (s *wsSession) HandleMessage(client *ws.Client, msg *ws.Message) error {
	var err error
	switch msg.Type {
	case ws.TypeStartGame:
		err = s.machine.StartGame()
	case ws.TypeCastVote:
		var p ws.CastVotePayload
		if jsonErr := json.Unmarshal(msg.Data, &p); jsonErr != nil {
			return ws.ErrInvalidMessage
		}
		err = s.machine.CastVote(p.VotedForID)
	case ws.TypeSkipQuestion:
		err = s.machine.SkipQuestion()
	case ws.TypeNextRound:
		err = s.machine.NextRound()
	case ws.TypeEndGame:
		err = s.machine.EndGame()
	case ws.TypeReveal:
		var p ws.RevealPayload
		if jsonErr := json.Unmarshal(msg.Data, &p); jsonErr != nil {
			return ws.ErrInvalidMessage
		}
		if !strings.HasPrefix(p.EventType, "reveal_") {
			return ws.ErrInvalidMessage
		}
		err = s.coord.Send(realtime.Event{Type: realtime.EventType(p.EventType), Payload: p.Payload})
	default:
		return ws.ErrInvalidMessage
	}

	if err != nil {
		return err
	}

	return client.SendMessage(ws.TypeState, s.machine.Snapshot())
}
