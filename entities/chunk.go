package entities

import (
	"time"
)

// EncodedChunk is one unit of encoder output, the minimal durable write
// granule. Ordering is by ChunkIndex; CreatedAt is diagnostic only.
type EncodedChunk struct {
	SessionID  string    `json:"session_id" gorm:"type:varchar(64);primaryKey;index:idx_chunks_session"`
	ChunkIndex int       `json:"chunk_index" gorm:"primaryKey"`
	Payload    []byte    `json:"-" gorm:"type:blob;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null"`
}

func (EncodedChunk) TableName() string {
	return "encoded_chunks"
}
