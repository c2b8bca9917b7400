package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bustedgame/busted-server/internal/database"
	"github.com/bustedgame/busted-server/internal/entitlements"
	"github.com/bustedgame/busted-server/internal/middleware"
	"github.com/bustedgame/busted-server/internal/models"
)

const maxGeneratedQuestions = 10

type QuestionHandler struct {
	db        *database.Database
	checker   entitlements.Checker
	generator entitlements.Generator
}

func NewQuestionHandler(db *database.Database, checker entitlements.Checker, generator entitlements.Generator) *QuestionHandler {
	return &QuestionHandler{db: db, checker: checker, generator: generator}
}

func (h *QuestionHandler) roomFromCode(c *gin.Context) (*models.Room, bool) {
	room, err := h.db.GetRoomByCode(c.Param("code"))
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get room"})
		return nil, false
	}
	return room, true
}

func (h *QuestionHandler) requirePremium(c *gin.Context, userID uuid.UUID) bool {
	ent, err := h.checker.HasActiveEntitlement(c.Request.Context(), userID)
	if err != nil {
		logrus.WithError(err).Warn("entitlement check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "entitlement check unavailable"})
		return false
	}
	if !ent.Active() {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "premium required"})
		return false
	}
	return true
}

// AddCustomQuestion adds a hand-written question to the room's pool
func (h *QuestionHandler) AddCustomQuestion(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	var req struct {
		Text string `json:"text" binding:"required,min=3,max=300"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, ok := h.roomFromCode(c)
	if !ok {
		return
	}

	q, err := h.db.AddCustomQuestion(room.ID, userID, req.Text, models.SourceManual)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add question"})
		return
	}

	c.JSON(http.StatusCreated, q)
}

// GetCustomQuestions lists the room's custom pool
func (h *QuestionHandler) GetCustomQuestions(c *gin.Context) {
	room, ok := h.roomFromCode(c)
	if !ok {
		return
	}

	questions, err := h.db.GetCustomQuestions(room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get questions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// DeleteCustomQuestion removes a custom question, author only
func (h *QuestionHandler) DeleteCustomQuestion(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	questionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question id"})
		return
	}

	if err := h.db.DeleteCustomQuestion(questionID, userID); err != nil {
		switch {
		case errors.Is(err, database.ErrQuestionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		case errors.Is(err, database.ErrNotAuthor):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the author can delete a question"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete question"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "question deleted"})
}

// GenerateQuestions asks the external generator for questions on a topic and
// stores them in the room's custom pool. Premium feature.
func (h *QuestionHandler) GenerateQuestions(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	var req struct {
		Topic string `json:"topic" binding:"required,min=2,max=100"`
		Count int    `json:"count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count := req.Count
	if count <= 0 {
		count = 5
	}
	if count > maxGeneratedQuestions {
		count = maxGeneratedQuestions
	}

	room, ok := h.roomFromCode(c)
	if !ok {
		return
	}
	if !h.requirePremium(c, userID) {
		return
	}

	texts, err := h.generator.Generate(c.Request.Context(), req.Topic, string(room.Vibe), count)
	if err != nil {
		logrus.WithError(err).Error("question generation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation failed"})
		return
	}

	added := make([]models.CustomQuestion, 0, len(texts))
	for _, text := range texts {
		q, err := h.db.AddCustomQuestion(room.ID, userID, text, models.SourceAI)
		if err != nil {
			logrus.WithError(err).Warn("skipping generated question")
			continue
		}
		added = append(added, *q)
	}

	c.JSON(http.StatusCreated, gin.H{"questions": added})
}

// AddPersonalQuestion saves a question to the caller's reusable pool. Premium
// feature.
func (h *QuestionHandler) AddPersonalQuestion(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	var req struct {
		Text     string `json:"text" binding:"required,min=3,max=300"`
		Category string `json:"category" binding:"max=50"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requirePremium(c, userID) {
		return
	}

	q, err := h.db.AddPersonalQuestion(userID, req.Text, req.Category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add question"})
		return
	}

	c.JSON(http.StatusCreated, q)
}

// GetPersonalQuestions lists the caller's pool
func (h *QuestionHandler) GetPersonalQuestions(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	questions, err := h.db.GetPersonalQuestions(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get questions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// DeletePersonalQuestion removes a question from the caller's pool
func (h *QuestionHandler) DeletePersonalQuestion(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	questionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question id"})
		return
	}

	if err := h.db.DeletePersonalQuestion(questionID, userID); err != nil {
		switch {
		case errors.Is(err, database.ErrQuestionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		case errors.Is(err, database.ErrNotAuthor):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the author can delete a question"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete question"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "question deleted"})
}

// AttachPersonalQuestion copies one of the caller's personal questions into
// the room's custom pool. Premium feature.
func (h *QuestionHandler) AttachPersonalQuestion(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	var req struct {
		PersonalID string `json:"personalId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	personalID, err := uuid.Parse(req.PersonalID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question id"})
		return
	}

	room, ok := h.roomFromCode(c)
	if !ok {
		return
	}
	if !h.requirePremium(c, userID) {
		return
	}

	q, err := h.db.AddPersonalToRoom(room.ID, userID, personalID)
	if err != nil {
		if errors.Is(err, database.ErrQuestionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to attach question"})
		return
	}

	c.JSON(http.StatusCreated, q)
}
