package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPUploaderSuccess(t *testing.T) {
	var gotTitle, gotSession string
	var gotSize int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		gotTitle = r.FormValue("title")
		gotSession = r.FormValue("session_id")

		file, _, err := r.FormFile("audio")
		require.NoError(t, err)
		defer file.Close()
		buf := make([]byte, 64)
		n, _ := file.Read(buf)
		gotSize = n

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"rec-42"}`))
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL)
	result, err := u.Upload(context.Background(), []byte("mp3-bytes"), Metadata{
		SessionID: "s1",
		Title:     "standup",
		Source:    "microphone",
	})
	require.NoError(t, err)

	assert.Equal(t, "rec-42", result.Ref)
	assert.Equal(t, int64(9), result.SizeBytes)
	assert.Equal(t, "standup", gotTitle)
	assert.Equal(t, "s1", gotSession)
	assert.Equal(t, 9, gotSize)
}

func TestHTTPUploaderServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL)
	_, err := u.Upload(context.Background(), []byte("mp3-bytes"), Metadata{SessionID: "s1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
	assert.Equal(t, 3, calls)
}
