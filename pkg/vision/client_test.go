package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/detect", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cam_001", req["camera_id"])
		assert.Equal(t, "frame-42", req["frame_ref"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"objects":[{"class":"person","confidence":0.91,"bbox":[10,20,30,40]}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	objects, err := c.Detect(context.Background(), "cam_001", "frame-42")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "person", objects[0].Class)
	assert.InDelta(t, 0.91, objects[0].Confidence, 1e-9)
}

func TestDetectEmptyScene(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"objects":null}`))
	}))
	defer srv.Close()

	objects, err := NewClient(srv.URL).Detect(context.Background(), "cam_001", "frame-1")
	require.NoError(t, err)
	assert.NotNil(t, objects)
	assert.Empty(t, objects)
}

func TestDetectServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Detect(context.Background(), "cam_001", "frame-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestDetectUnreachable(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1").Detect(context.Background(), "cam_001", "frame-1")
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(srv.URL).Health(context.Background()))
}
