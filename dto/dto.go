package dto

type StartRecordingRequest struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

type StartRecordingResponse struct {
	SessionID string `json:"session_id"`
}

type FinalizeResponse struct {
	SessionID  string `json:"session_id"`
	UploadRef  string `json:"upload_ref"`
	SizeBytes  int64  `json:"size_bytes"`
	ChunkCount int    `json:"chunk_count"`
	// Warning is set when the artifact was assembled from a
	// non-contiguous chunk sequence and may be incomplete.
	Warning string `json:"warning,omitempty"`
}

type UnfinishedRecordingsResponse struct {
	SessionIDs []string `json:"session_ids"`
}

// RecordingReadyEvent is published after a confirmed upload so downstream
// transcription workers can pick the recording up.
type RecordingReadyEvent struct {
	SessionID       string `json:"session_id"`
	UploadRef       string `json:"upload_ref"`
	SizeBytes       int64  `json:"size_bytes"`
	ChunkCount      int    `json:"chunk_count"`
	DurationSeconds int    `json:"duration_seconds"`
}
