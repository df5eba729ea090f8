package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/feedbacklab/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DBDriver:            config.DriverSQLite,
		SQLitePath:          filepath.Join(t.TempDir(), "feedbacklab.db"),
		RedisAddr:           "127.0.0.1:1", // nadie escucha: cola y cache en memoria
		RedisConnectTimeout: 100 * time.Millisecond,
		QueuePrefix:         "feedbacklab-test",
		QueueWorkerID:       "test",
		CacheTTL:            time.Minute,
		OutboxPeriod:        20 * time.Millisecond,
		OutboxLimit:         10,
	}
}

func startRun(t *testing.T, cfg *config.Config) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zap.NewNop(), ln) }()
	t.Cleanup(cancel)

	return "http://" + ln.Addr().String(), cancel, done
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		return 0, ""
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRun_ServesHTTPWhileRelayingOutbox(t *testing.T) {
	base, cancel, done := startRun(t, testConfig(t))

	require.Eventually(t, func() bool {
		code, _ := getBody(t, base+"/health")
		return code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond, "el servidor HTTP debe responder mientras corre el relayer")

	payload, _ := json.Marshal(map[string]any{
		"organization_id": "org-1",
		"name":            "Algebra",
		"teacher_email":   "teacher@school.test",
		"student_emails":  []string{"ana@school.test"},
	})
	resp, err := http.Post(base+"/classes", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// outbox -> relayer -> cola en memoria -> handler de notificaciones
	require.Eventually(t, func() bool {
		code, body := getBody(t, base+"/notifications?recipient=teacher@school.test")
		if code != http.StatusOK {
			return false
		}
		var out struct {
			Data []map[string]any `json:"data"`
		}
		return json.Unmarshal([]byte(body), &out) == nil && len(out.Data) == 1
	}, 5*time.Second, 20*time.Millisecond)

	code, body := getBody(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "feedbacklab_events_published_total")
	assert.Contains(t, body, "go_goroutines")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRun_ReturnsErrorWhenDatabaseCannotOpen(t *testing.T) {
	cfg := testConfig(t)
	cfg.SQLitePath = filepath.Join(t.TempDir(), "missing", "dir", "feedbacklab.db")

	_, _, done := startRun(t, cfg)

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run should fail fast without a database")
	}
}
