package imgproc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusComplete, true},
		{StatusFailed, true},
		{StatusError, true},
		{StatusCanceled, true},
		{Status("UNKNOWN"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", "token")
	assert.ErrorIs(t, err, ErrBaseURLRequired)

	_, err = NewClient("http://localhost", "")
	assert.ErrorIs(t, err, ErrTokenRequired)
}

func TestSubmit(t *testing.T) {
	var got taskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(taskResponse{TaskID: "t-1", Status: "PENDING"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "tok")
	require.NoError(t, err)

	taskID, err := c.Submit(context.Background(), TaskInput{
		Operation: OperationColorize,
		SourceURL: "https://cdn/in.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", taskID)
	assert.Equal(t, OperationColorize, got.Operation)
	assert.Equal(t, "https://cdn/in.png", got.SourceURL)
}

func TestSubmit_Errors(t *testing.T) {
	c, err := NewClient("http://localhost", "tok")
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), TaskInput{})
	assert.ErrorIs(t, err, ErrOperationRequired)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(taskResponse{Error: "unsupported format"})
	}))
	defer srv.Close()

	c, err = NewClient(srv.URL, "tok")
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), TaskInput{Operation: OperationCutout})
	assert.ErrorIs(t, err, ErrSubmitFailed)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/tasks/t-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"COMPLETE","outputs":[{"name":"out.png","url":"https://cdn/out.png"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "tok")
	require.NoError(t, err)

	st, err := c.Status(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", st.TaskID)
	assert.Equal(t, StatusComplete, st.Status)
	require.Len(t, st.Outputs, 1)
	assert.Equal(t, "https://cdn/out.png", st.Outputs[0].URL)
}

func TestStatus_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "tok", WithMaxRetries(1), WithBaseBackoff(time.Millisecond))
	require.NoError(t, err)

	_, err = c.Status(context.Background(), "t-1")
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStatus_RequiresTaskID(t *testing.T) {
	c, err := NewClient("http://localhost", "tok")
	require.NoError(t, err)
	_, err = c.Status(context.Background(), "")
	assert.ErrorIs(t, err, ErrTaskIDRequired)
}
