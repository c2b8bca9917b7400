package database

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bustedgame/busted-server/internal/models"
)

// PickedQuestion is what question selection hands to the game: a catalog row
// or a room custom question, flattened to one shape.
type PickedQuestion struct {
	ID        uuid.UUID   `json:"id"`
	Vibe      models.Vibe `json:"vibe"`
	Text      string      `json:"text"`
	IsPremium bool        `json:"isPremium"`
	IsCustom  bool        `json:"isCustom"`
}

// GetRandomQuestion picks a catalog question for the vibe and language that
// is not in excludeIDs. Exhaustion is recoverable by cycling: when the
// exclusion set filters everything out, it retries once with no exclusions.
func (d *Database) GetRandomQuestion(vibe models.Vibe, excludeIDs []uuid.UUID, language string, includePremium bool) (*models.Question, error) {
	q := d.db.Where("vibe = ? AND language = ?", vibe, language)
	if !includePremium {
		q = q.Where("is_premium = ?", false)
	}
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}

	var question models.Question
	err := q.Order("random()").Take(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if len(excludeIDs) > 0 {
			return d.GetRandomQuestion(vibe, nil, language, includePremium)
		}
		return nil, ErrQuestionExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: pick random question: %w", err)
	}
	return &question, nil
}

func (d *Database) GetQuestionByID(id uuid.UUID) (*models.Question, error) {
	var question models.Question
	err := d.db.First(&question, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: find question %s: %w", id, err)
	}
	return &question, nil
}

func (d *Database) getRandomCustomQuestion(roomID uuid.UUID, excludeIDs []uuid.UUID) (*models.CustomQuestion, error) {
	q := d.db.Where("room_id = ?", roomID)
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}

	var question models.CustomQuestion
	err := q.Order("random()").Take(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: pick custom question: %w", err)
	}
	return &question, nil
}

// GetQuestionForRoom blends the room's custom questions with the catalog.
// When an unused custom question exists it is chosen with probability
// customBias; the catalog is the fallback either way, and a custom question
// also covers for an exhausted catalog.
func (d *Database) GetQuestionForRoom(roomID uuid.UUID, vibe models.Vibe, excludePreset, excludeCustom []uuid.UUID, language string, includePremium bool) (*PickedQuestion, error) {
	custom, err := d.getRandomCustomQuestion(roomID, excludeCustom)
	if err != nil {
		return nil, err
	}

	asPicked := func(c *models.CustomQuestion) *PickedQuestion {
		return &PickedQuestion{ID: c.ID, Vibe: vibe, Text: c.Text, IsCustom: true}
	}

	if custom != nil && d.randFloat() < d.customBias {
		return asPicked(custom), nil
	}

	preset, err := d.GetRandomQuestion(vibe, excludePreset, language, includePremium)
	if errors.Is(err, ErrQuestionExhausted) && custom != nil {
		return asPicked(custom), nil
	}
	if err != nil {
		return nil, err
	}
	return &PickedQuestion{ID: preset.ID, Vibe: preset.Vibe, Text: preset.Text, IsPremium: preset.IsPremium}, nil
}

// LookupQuestion resolves a room's current question id against the catalog
// first and the room's custom pool second. A refresh mid-round has only the
// id from the room row and no way to know which kind it is.
func (d *Database) LookupQuestion(roomID, questionID uuid.UUID, vibe models.Vibe) (*PickedQuestion, error) {
	preset, err := d.GetQuestionByID(questionID)
	if err == nil {
		return &PickedQuestion{ID: preset.ID, Vibe: preset.Vibe, Text: preset.Text, IsPremium: preset.IsPremium}, nil
	}
	if !errors.Is(err, ErrQuestionNotFound) {
		return nil, err
	}

	var custom models.CustomQuestion
	err = d.db.First(&custom, "id = ? AND room_id = ?", questionID, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: find custom question %s: %w", questionID, err)
	}
	return &PickedQuestion{ID: custom.ID, Vibe: vibe, Text: custom.Text, IsCustom: true}, nil
}

// UsedQuestionIDs lists every question already voted on in the room, for
// exclusion when picking the next one.
func (d *Database) UsedQuestionIDs(roomID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := d.db.Model(&models.Vote{}).
		Distinct("question_id").
		Where("room_id = ?", roomID).
		Pluck("question_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list used questions for room %s: %w", roomID, err)
	}
	return ids, nil
}

func (d *Database) AddCustomQuestion(roomID, userID uuid.UUID, text string, source models.QuestionSource) (*models.CustomQuestion, error) {
	question := &models.CustomQuestion{
		RoomID: roomID,
		UserID: userID,
		Text:   text,
		Source: source,
	}
	if err := d.db.Create(question).Error; err != nil {
		return nil, fmt.Errorf("gorm: add custom question: %w", err)
	}
	return question, nil
}

func (d *Database) GetCustomQuestions(roomID uuid.UUID) ([]models.CustomQuestion, error) {
	var questions []models.CustomQuestion
	err := d.db.Where("room_id = ?", roomID).Order("created_at ASC").Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list custom questions for room %s: %w", roomID, err)
	}
	return questions, nil
}

// DeleteCustomQuestion removes a custom question, author-only.
func (d *Database) DeleteCustomQuestion(questionID, userID uuid.UUID) error {
	res := d.db.Delete(&models.CustomQuestion{}, "id = ? AND user_id = ?", questionID, userID)
	if res.Error != nil {
		return fmt.Errorf("gorm: delete custom question: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := d.db.Model(&models.CustomQuestion{}).Where("id = ?", questionID).Count(&count).Error; err != nil {
			return fmt.Errorf("gorm: check custom question: %w", err)
		}
		if count > 0 {
			return ErrNotAuthor
		}
		return ErrQuestionNotFound
	}
	return nil
}

func (d *Database) AddPersonalQuestion(userID uuid.UUID, text, category string) (*models.PersonalQuestion, error) {
	question := &models.PersonalQuestion{UserID: userID, Text: text, Category: category}
	if err := d.db.Create(question).Error; err != nil {
		return nil, fmt.Errorf("gorm: add personal question: %w", err)
	}
	return question, nil
}

func (d *Database) GetPersonalQuestions(userID uuid.UUID) ([]models.PersonalQuestion, error) {
	var questions []models.PersonalQuestion
	err := d.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list personal questions: %w", err)
	}
	return questions, nil
}

func (d *Database) DeletePersonalQuestion(questionID, userID uuid.UUID) error {
	res := d.db.Delete(&models.PersonalQuestion{}, "id = ? AND user_id = ?", questionID, userID)
	if res.Error != nil {
		return fmt.Errorf("gorm: delete personal question: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// AddPersonalToRoom copies a question from the user's personal pool into the
// room's custom pool so it can come up during play.
func (d *Database) AddPersonalToRoom(roomID, userID, personalID uuid.UUID) (*models.CustomQuestion, error) {
	var personal models.PersonalQuestion
	err := d.db.First(&personal, "id = ? AND user_id = ?", personalID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: find personal question %s: %w", personalID, err)
	}
	return d.AddCustomQuestion(roomID, userID, personal.Text, models.SourcePersonal)
}
