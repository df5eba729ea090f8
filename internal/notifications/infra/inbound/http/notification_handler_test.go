package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davicafu/feedbacklab/internal/notifications/domain"
	"github.com/davicafu/feedbacklab/internal/notifications/infra/outbound/store/memory"
)

func setupRouter(t *testing.T) (*gin.Engine, *memory.NotificationStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewNotificationStore()
	r := gin.New()
	RegisterNotificationRoutes(r, NewNotificationHandler(store))
	return r, store
}

func TestListNotifications(t *testing.T) {
	r, store := setupRouter(t)
	at := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	for _, src := range []string{"1", "2", "3"} {
		require.NoError(t, store.Save(context.Background(), domain.NewEmail("alert.generated", src, "head@school.org", "s"+src, "b", at)))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications?recipient=Head@School.org&limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []domain.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}

func TestListNotifications_EmptyIsArray(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications?recipient=nobody@school.org", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}

func TestListNotifications_BadRequest(t *testing.T) {
	r, _ := setupRouter(t)

	for _, url := range []string{"/notifications", "/notifications?recipient=a@b.org&limit=-1", "/notifications?recipient=a@b.org&limit=x"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, url)
	}
}
