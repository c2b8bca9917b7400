package database

import (
	"errors"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bustedgame/busted-server/internal/models"
)

func (d *Database) Connect() error {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return err
	}

	err = db.AutoMigrate(
		&models.Room{},
		&models.Player{},
		&models.Question{},
		&models.CustomQuestion{},
		&models.PersonalQuestion{},
		&models.Vote{},
		&models.RoundResult{},
	)
	if err != nil {
		return err
	}

	d.db = db

	return nil
}
