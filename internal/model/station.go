package model

import "time"

// Station represents a physical waste-collection point tracked by fill level.
type Station struct {
	ID                  int64     `gorm:"primaryKey" json:"id"`
	Name                string    `gorm:"size:100;not null" json:"name"`
	VolumePercentage    float64   `gorm:"not null;default:0" json:"volume_percentage"`
	CollectionRequested bool      `gorm:"not null;default:false;index" json:"collection_requested"`
	CreatedAt           time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time `gorm:"not null" json:"updated_at"`
}

// State returns the lifecycle state derived from the collection flag.
func (s Station) State() StationState {
	if s.CollectionRequested {
		return StatePendingCollection
	}
	return StateNormal
}

// StationState is the two-state view of a station's lifecycle.
type StationState string

const (
	StateNormal            StationState = "normal"
	StatePendingCollection StationState = "pending_collection"
)
