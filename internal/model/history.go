package model

import "time"

// OperationType identifies the mutation a history record describes.
type OperationType string

const (
	OperationCreate             OperationType = "create"
	OperationUpdate             OperationType = "update"
	OperationCollectionRequest  OperationType = "collection_request"
	OperationCollectionComplete OperationType = "collection_complete"
)

// Valid reports whether t is one of the known operation types.
func (t OperationType) Valid() bool {
	switch t {
	case OperationCreate, OperationUpdate, OperationCollectionRequest, OperationCollectionComplete:
		return true
	}
	return false
}

// HistoryRecord is an immutable audit entry for one committed station mutation.
// StationID is a plain reference; records are never rewritten when the station changes.
type HistoryRecord struct {
	ID               int64         `gorm:"primaryKey" json:"id"`
	StationID        int64         `gorm:"not null;index:idx_history_station_ts,priority:1" json:"station"`
	OperationType    OperationType `gorm:"size:50;not null;index" json:"operation_type"`
	VolumePercentage float64       `gorm:"not null" json:"volume_percentage"`
	Timestamp        time.Time     `gorm:"not null;index;index:idx_history_station_ts,priority:2" json:"timestamp"`
	Notes            *string       `gorm:"type:text" json:"notes"`
}
