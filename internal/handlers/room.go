package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bustedgame/busted-server/internal/database"
	"github.com/bustedgame/busted-server/internal/middleware"
	"github.com/bustedgame/busted-server/internal/models"
)

type RoomHandler struct {
	db *database.Database
}

func NewRoomHandler(db *database.Database) *RoomHandler {
	return &RoomHandler{db: db}
}

// CreateRoom creates a room and seats the caller as host
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	username := c.MustGet(middleware.UsernameKey).(string)

	var req struct {
		Vibe     string `json:"vibe" binding:"required,oneof=party date_night family spicy"`
		Language string `json:"language"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	language := req.Language
	if language == "" {
		language = "en"
	}

	room, err := h.db.CreateRoom(userID, username, models.Vibe(req.Vibe), language)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	players, _ := h.db.GetPlayers(room.ID)
	c.JSON(http.StatusCreated, formatRoomResponse(room, players))
}

// JoinRoom seats the caller in the room behind a code. Rejoining after a
// leave reactivates the old seat instead of creating a second one.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	username := c.MustGet(middleware.UsernameKey).(string)
	code := c.Param("code")

	room, err := h.db.JoinRoom(code, userID, username)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		case errors.Is(err, database.ErrGameEnded):
			c.JSON(http.StatusGone, gin.H{"error": "game has ended"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join room"})
		}
		return
	}

	players, _ := h.db.GetPlayers(room.ID)
	c.JSON(http.StatusOK, formatRoomResponse(room, players))
}

// GetRoom returns the room behind a code, players included
func (h *RoomHandler) GetRoom(c *gin.Context) {
	code := c.Param("code")

	room, err := h.db.GetRoomByCode(code)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get room"})
		return
	}

	players, err := h.db.GetPlayers(room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get room"})
		return
	}

	c.JSON(http.StatusOK, formatRoomResponse(room, players))
}

// LeaveRoom marks the caller's seat inactive. Votes already cast stay, so a
// resolved round keeps counting them.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	code := c.Param("code")

	room, err := h.db.GetRoomByCode(code)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave room"})
		return
	}

	if err := h.db.DeactivatePlayer(room.ID, userID); err != nil {
		if errors.Is(err, database.ErrPlayerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "left room"})
}

// UpdateVibe changes the room's question category. Host only, lobby only.
func (h *RoomHandler) UpdateVibe(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	code := c.Param("code")

	var req struct {
		Vibe string `json:"vibe" binding:"required,oneof=party date_night family spicy"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.db.GetRoomByCode(code)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update room"})
		return
	}

	if room.HostID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the host can change the vibe"})
		return
	}
	if room.Status != models.StatusLobby {
		c.JSON(http.StatusConflict, gin.H{"error": "game already started"})
		return
	}

	if err := h.db.UpdateRoomVibe(room.ID, models.Vibe(req.Vibe)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update room"})
		return
	}

	room.Vibe = models.Vibe(req.Vibe)
	players, _ := h.db.GetPlayers(room.ID)
	c.JSON(http.StatusOK, formatRoomResponse(room, players))
}

// GetResults returns every resolved round for the room, oldest first
func (h *RoomHandler) GetResults(c *gin.Context) {
	code := c.Param("code")

	room, err := h.db.GetRoomByCode(code)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get results"})
		return
	}

	results, err := h.db.GetAllRoundResults(room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get results"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func formatRoomResponse(room *models.Room, players []models.Player) gin.H {
	formatted := make([]gin.H, len(players))
	for i, p := range players {
		formatted[i] = gin.H{
			"userId":   p.UserID,
			"username": p.Username,
			"isHost":   p.IsHost,
			"joinedAt": p.JoinedAt,
		}
	}

	return gin.H{
		"id":           room.ID,
		"code":         room.Code,
		"hostId":       room.HostID,
		"vibe":         room.Vibe,
		"status":       room.Status,
		"currentRound": room.CurrentRound,
		"hostLanguage": room.HostLanguage,
		"createdAt":    room.CreatedAt,
		"players":      formatted,
	}
}
