package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// HTTPUploader posts the artifact as multipart form data to a single
// endpoint and expects a JSON body carrying the created record id.
type HTTPUploader struct {
	endpoint string
	client   *http.Client
}

func NewHTTPUploader(endpoint string) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, artifact []byte, meta Metadata) (*Result, error) {
	operation := func() (*Result, error) {
		return u.post(ctx, artifact, meta)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 15 * time.Second
	result, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("session_id", meta.SessionID).Msg("upload failed after retries")
		return nil, err
	}
	return result, nil
}

func (u *HTTPUploader) post(ctx context.Context, artifact []byte, meta Metadata) (*Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", fmt.Sprintf("%s.mp3", meta.SessionID))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(artifact); err != nil {
		return nil, err
	}
	if err := writer.WriteField("session_id", meta.SessionID); err != nil {
		return nil, err
	}
	if err := writer.WriteField("title", meta.Title); err != nil {
		return nil, err
	}
	if err := writer.WriteField("source", meta.Source); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("upload rejected: status %d: %s", resp.StatusCode, payload)
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("upload response decode: %w", err)
	}

	return &Result{Ref: parsed.ID, SizeBytes: int64(len(artifact))}, nil
}
