package entities

import (
	"time"

	"capture-agent/constant"
)

// RecordingSession is metadata for one continuous capture attempt. Chunk
// durability never depends on this row; it exists for the recovery listing
// and diagnostics.
type RecordingSession struct {
	ID          string                   `json:"id" gorm:"type:varchar(64);primaryKey"`
	Title       string                   `json:"title" gorm:"type:varchar(255)"`
	Source      string                   `json:"source" gorm:"type:varchar(64)"`
	SampleRate  int                      `json:"sample_rate" gorm:"not null"`
	Channels    int                      `json:"channels" gorm:"not null"`
	BitrateKbps int                      `json:"bitrate_kbps" gorm:"not null"`
	Status      constant.RecordingStatus `json:"status" gorm:"type:varchar(20);not null"`
	TotalChunks int                      `json:"total_chunks" gorm:"default:0"`
	StartedAt   time.Time                `json:"started_at" gorm:"not null"`
	FinalizedAt *time.Time               `json:"finalized_at"`
}

func (RecordingSession) TableName() string {
	return "recording_sessions"
}
