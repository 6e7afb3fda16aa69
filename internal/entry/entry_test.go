package entry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlpAus/habit-tracker-backend/internal/auth"
	"github.com/SlpAus/habit-tracker-backend/internal/habit"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/database"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/logging"
	"github.com/SlpAus/habit-tracker-backend/pkg/civil"
)

type recordingInvalidator struct {
	users []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string) {
	r.users = append(r.users, userID)
}

type fixture struct {
	habits  *habit.Service
	entries *Service
	repo    *Repository
	inv     *recordingInvalidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	habitRepo := habit.NewRepository(db)
	require.NoError(t, habitRepo.Migrate())
	repo := NewRepository(db)
	require.NoError(t, repo.Migrate())

	inv := &recordingInvalidator{}
	entries := NewService(repo, inv, time.UTC, logging.Discard())
	entries.now = func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) }

	return &fixture{
		habits:  habit.NewService(habitRepo, repo, nil, logging.Discard()),
		entries: entries,
		repo:    repo,
		inv:     inv,
	}
}

func (f *fixture) newHabit(t *testing.T, userID, name string) habit.Habit {
	t.Helper()
	h, err := f.habits.Create(context.Background(), userID, name, "")
	require.NoError(t, err)
	return h
}

func TestCreateAndDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.newHabit(t, "u1", "Read")

	e, err := f.entries.Create(ctx, "u1", h.ID, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", e.Date)
	assert.Equal(t, []string{"u1"}, f.inv.users)

	_, err = f.entries.Create(ctx, "u1", h.ID, "2024-03-10")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.newHabit(t, "u1", "Read")

	_, err := f.entries.Create(ctx, "u1", "nope", "2024-03-10")
	assert.ErrorIs(t, err, habit.ErrInvalidID)

	_, err = f.entries.Create(ctx, "u1", h.ID, "2023-02-29")
	assert.ErrorIs(t, err, ErrInvalidDate)

	// 别人的习惯视为不存在
	_, err = f.entries.Create(ctx, "u2", h.ID, "2024-03-10")
	assert.ErrorIs(t, err, habit.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.newHabit(t, "u1", "Read")

	_, err := f.entries.Create(ctx, "u1", h.ID, "2024-03-09")
	require.NoError(t, err)

	assert.ErrorIs(t, f.entries.Delete(ctx, "u2", h.ID, "2024-03-09"), ErrNotFound)
	require.NoError(t, f.entries.Delete(ctx, "u1", h.ID, "2024-03-09"))
	assert.ErrorIs(t, f.entries.Delete(ctx, "u1", h.ID, "2024-03-09"), ErrNotFound)
}

func TestStatsQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	read := f.newHabit(t, "u1", "Read")
	run := f.newHabit(t, "u1", "Run")
	other := f.newHabit(t, "u2", "Swim")

	for _, d := range []string{"2024-03-05", "2024-03-08", "2024-03-09", "2024-03-11"} {
		_, err := f.entries.Create(ctx, "u1", read.ID, d)
		require.NoError(t, err)
	}
	for _, d := range []string{"2024-03-09", "2024-03-10"} {
		_, err := f.entries.Create(ctx, "u1", run.ID, d)
		require.NoError(t, err)
	}
	_, err := f.entries.Create(ctx, "u2", other.ID, "2024-03-09")
	require.NoError(t, err)

	today := civil.MustParse("2024-03-10")

	dates, err := f.repo.DatesForHabit(ctx, read.ID, today, 0)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{
		civil.MustParse("2024-03-09"),
		civil.MustParse("2024-03-08"),
		civil.MustParse("2024-03-05"),
	}, dates)

	limited, err := f.repo.DatesForHabit(ctx, read.ID, today, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	counts, err := f.repo.CountByDate(ctx, "u1", today.AddDays(-2), today)
	require.NoError(t, err)
	assert.Equal(t, map[civil.Date]int{
		civil.MustParse("2024-03-08"): 1,
		civil.MustParse("2024-03-09"): 2,
		civil.MustParse("2024-03-10"): 1,
	}, counts)

	ids, err := f.entries.TodayHabitIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{run.ID}, ids)
}

func TestHabitDeleteCascadesEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.newHabit(t, "u1", "Read")

	_, err := f.entries.Create(ctx, "u1", h.ID, "2024-03-10")
	require.NoError(t, err)
	require.NoError(t, f.habits.Delete(ctx, "u1", h.ID))

	dates, err := f.repo.DatesForHabit(ctx, h.ID, civil.MustParse("2024-03-10"), 0)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestCalendarDateValidator(t *testing.T) {
	require.NoError(t, RegisterValidators())
	require.NoError(t, RegisterValidators())

	type payload struct {
		Date string `binding:"calendardate"`
	}
	for s, ok := range map[string]bool{
		"2024-02-29":           true,
		"2023-02-29":           false,
		"2024-3-1":             false,
		"2024-03-10T00:00:00Z": false,
		"yesterday":            false,
	} {
		err := binding.Validator.ValidateStruct(payload{Date: s})
		assert.Equal(t, ok, err == nil, s)
	}
}

func TestRegisterValidatorsRemembersFailure(t *testing.T) {
	var r registrar
	calls := 0
	notValidator := func() any {
		calls++
		return struct{}{}
	}

	first := r.register(notValidator)
	require.Error(t, first)
	assert.Equal(t, first, r.register(notValidator))
	assert.Equal(t, 1, calls)
}

func TestHandler(t *testing.T) {
	require.NoError(t, RegisterValidators())
	f := newFixture(t)
	h := f.newHabit(t, "u1", "Read")

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.UserIDKey, "u1")
		c.Next()
	})
	NewHandler(f.entries).Register(r.Group(""))

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	body := `{"habitId":"` + h.ID + `","date":"2024-03-10"}`
	assert.Equal(t, http.StatusCreated, do(http.MethodPost, "/entries", body).Code)

	w := do(http.MethodPost, "/entries", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "entry already exists")

	assert.Equal(t, http.StatusBadRequest,
		do(http.MethodPost, "/entries", `{"habitId":"`+h.ID+`","date":"10/03/2024"}`).Code)
	assert.Equal(t, http.StatusNotFound,
		do(http.MethodPost, "/entries", `{"habitId":"0190a0b0-0000-7000-8000-000000000000","date":"2024-03-10"}`).Code)

	w = do(http.MethodGet, "/entries/today", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ids []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ids))
	assert.Equal(t, []string{h.ID}, ids)

	assert.Equal(t, http.StatusOK, do(http.MethodDelete, "/entries", body).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/entries", body).Code)

	w = do(http.MethodGet, "/entries/today", "")
	assert.JSONEq(t, "[]", w.Body.String())
}
