package models

import (
	"time"

	"github.com/google/uuid"
)

// Wave is one coordinated round of benchmark dispatch. It is created fresh
// on every trigger and never mutated afterwards.
type Wave struct {
	ID          string    `json:"wave_id"`
	TriggeredAt time.Time `json:"triggered_at"`
	Groups      []string  `json:"groups"`
	Filenames   []string  `json:"filenames"`
}

// NewWave stamps a fresh correlation id and trigger time. The group and
// filename slices are copied so later mutation by the caller cannot leak in.
func NewWave(groups, filenames []string) Wave {
	return Wave{
		ID:          uuid.NewString(),
		TriggeredAt: time.Now().UTC(),
		Groups:      append([]string(nil), groups...),
		Filenames:   append([]string(nil), filenames...),
	}
}
