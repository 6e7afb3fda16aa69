package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlpAus/habit-tracker-backend/internal/auth"
	"github.com/SlpAus/habit-tracker-backend/internal/entry"
	"github.com/SlpAus/habit-tracker-backend/internal/habit"
	"github.com/SlpAus/habit-tracker-backend/internal/notification"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/config"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/database"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/logging"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/metrics"
	"github.com/SlpAus/habit-tracker-backend/internal/stats"
)

var secret = []byte("router-test-secret")

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	log := logging.Discard()
	m := metrics.New()

	habitRepo := habit.NewRepository(db)
	entryRepo := entry.NewRepository(db)
	tokenRepo := notification.NewRepository(db)
	require.NoError(t, habitRepo.Migrate())
	require.NoError(t, entryRepo.Migrate())
	require.NoError(t, tokenRepo.Migrate())

	cache := stats.NewCache(nil, nil, time.Minute, m, log)
	habits := habit.NewService(habitRepo, entryRepo, cache, log)
	entries := entry.NewService(entryRepo, cache, time.UTC, log)
	statsSvc := stats.NewService(habits, entryRepo, cache, m, time.UTC, log)
	reminder := notification.NewReminder(tokenRepo, habits, entryRepo, notification.NewLogSender(log), m, time.UTC, log)

	r, err := NewRouter(Options{
		Server:      config.ServerConfig{Cors: config.CorsConfig{AllowedOrigins: []string{"http://localhost:3000"}}},
		Log:         log,
		Metrics:     m,
		Verifier:    auth.NewHS256Verifier(secret, ""),
		RateLimiter: auth.NewRateLimiter(1000, 1000),
		Health:      func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) },
	}, Handlers{
		Habits:        habit.NewHandler(habits),
		Entries:       entry.NewHandler(entries),
		Stats:         stats.NewHandler(statsSvc, 60),
		Notifications: notification.NewHandler(notification.NewService(tokenRepo, log), reminder),
	})
	require.NoError(t, err)
	return r
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(secret)
	require.NoError(t, err)
	return "Bearer " + token
}

type client struct {
	t      *testing.T
	router *gin.Engine
	auth   string
}

func (c client) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func TestPublicEndpoints(t *testing.T) {
	c := client{t: t, router: newTestRouter(t)}

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", "").Code)

	w := c.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "habit_tracker_http_requests_total")

	w = c.do(http.MethodGet, "/habits", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "No authorization header found")
}

func TestHabitLifecycleAndStats(t *testing.T) {
	r := newTestRouter(t)
	alice := client{t: t, router: r, auth: bearer(t, "alice")}
	bob := client{t: t, router: r, auth: bearer(t, "bob")}

	w := alice.do(http.MethodPost, "/habits", `{"name":"Read","emoji":"📚"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var read habit.Habit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &read))

	// 未声明的字段被拒绝
	w = alice.do(http.MethodPost, "/habits", `{"name":"Run","color":"red"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	today := time.Now().UTC().Format("2006-01-02")
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	for _, d := range []string{yesterday, today} {
		w = alice.do(http.MethodPost, "/entries", `{"habitId":"`+read.ID+`","date":"`+d+`"}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	// 别人的习惯不可见
	w = bob.do(http.MethodPost, "/entries", `{"habitId":"`+read.ID+`","date":"`+today+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = alice.do(http.MethodGet, "/stats/streaks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var streaks []stats.StreakResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &streaks))
	require.Len(t, streaks, 1)
	assert.Equal(t, stats.StreakResult{HabitID: read.ID, Name: "Read", Streak: 2}, streaks[0])

	w = alice.do(http.MethodGet, "/stats/heatmap?days=7", "")
	require.Equal(t, http.StatusOK, w.Code)
	var buckets []stats.Bucket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buckets))
	require.Len(t, buckets, 7)
	assert.Equal(t, today, buckets[6].Date.String())
	assert.Equal(t, 1, buckets[6].Count)
	assert.Equal(t, 1, buckets[5].Count)

	assert.Equal(t, http.StatusBadRequest, alice.do(http.MethodGet, "/stats/heatmap?days=0", "").Code)

	w = alice.do(http.MethodGet, "/entries/today", "")
	assert.JSONEq(t, `["`+read.ID+`"]`, w.Body.String())

	// 删除习惯后连续记录和热力图都清空
	require.Equal(t, http.StatusOK, alice.do(http.MethodDelete, "/habits/"+read.ID, "").Code)
	w = alice.do(http.MethodGet, "/stats/streaks", "")
	assert.JSONEq(t, `[]`, w.Body.String())
	w = alice.do(http.MethodGet, "/stats/heatmap?days=1", "")
	assert.JSONEq(t, `[{"date":"`+today+`","count":0}]`, w.Body.String())

	w = bob.do(http.MethodPost, "/notifications/register-token", `{"fcmToken":"bob-phone"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}
