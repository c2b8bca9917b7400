package database

import (
	"math/rand"

	"gorm.io/gorm"
)

// DefaultCustomQuestionBias is the probability of preferring a room's custom
// question over a catalog question when both are available. Tunable via
// CUSTOM_QUESTION_BIAS, it is a policy knob, not a contract.
const DefaultCustomQuestionBias = 0.5

type Database struct {
	db         *gorm.DB
	customBias float64

	// randFloat is swapped out in tests to pin the custom/catalog choice.
	randFloat func() float64
}

// NewDatabase returns an unconnected store; call Connect before use.
func NewDatabase() *Database {
	return &Database{
		customBias: DefaultCustomQuestionBias,
		randFloat:  rand.Float64,
	}
}

func (d *Database) SetCustomQuestionBias(bias float64) {
	if bias < 0 {
		bias = 0
	}
	if bias > 1 {
		bias = 1
	}
	d.customBias = bias
}
