package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"calorie_tracker/internal/auth"
	"calorie_tracker/internal/capture"
	"calorie_tracker/internal/db"
	"calorie_tracker/internal/estimator"
	"calorie_tracker/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeModel stands in for the estimation service
type fakeModel struct {
	mu    sync.Mutex
	reply string
	slow  bool
	calls atomic.Int32
}

func (m *fakeModel) set(reply string, slow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply, m.slow = reply, slow
}

func (m *fakeModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.WriteHeader(http.StatusOK)
		return
	}
	m.calls.Add(1)
	m.mu.Lock()
	reply, slow := m.reply, m.slow
	m.mu.Unlock()
	if slow {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(reply))
}

type testApp struct {
	router http.Handler
	model  *fakeModel
	users  *db.UserRepository
	ledger *db.LedgerRepository
	today  string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db") + "?_pragma=busy_timeout(5000)"))
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	model := &fakeModel{reply: `{"calories": "250"}`}
	srv := httptest.NewServer(model)
	t.Cleanup(srv.Close)
	est := estimator.NewClient(srv.URL+"/predict", time.Second)

	users := db.NewUserRepository(gdb)
	authSvc, err := auth.NewService(users, auth.NewRedisSessionStore(rdb), "test-secret", time.Hour,
		auth.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ledger := db.NewLedgerRepository(gdb)
	captures := capture.NewService(authSvc, est, ledger, capture.WithClock(func() time.Time { return now }, time.UTC))

	router := NewRouter(gin.New(), Deps{
		Auth:        authSvc,
		Captures:    captures,
		Estimator:   est,
		HomeEntries: 5,
		Cookie:      CookieOptions{MaxAge: time.Hour},
	})
	return &testApp{router: router, model: model, users: users, ledger: ledger, today: "2024-05-01"}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) postForm(path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return a.do(req)
}

func (a *testApp) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return a.do(req)
}

func (a *testApp) capture(cookie *http.Cookie, image []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if image != nil {
		part, _ := mw.CreateFormFile("file", "meal.jpg")
		_, _ = part.Write(image)
	}
	_ = mw.WriteField("prompt", "Estimate calories")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/capture", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return a.do(req)
}

// signUp registers and logs in, returning the session cookie
func (a *testApp) signUp(t *testing.T, username string) *http.Cookie {
	t.Helper()
	w := a.postForm("/register", url.Values{
		"email":    {username + "@example.com"},
		"username": {username},
		"password": {"password123"},
	}, nil)
	require.Equal(t, http.StatusFound, w.Code)

	w = a.postForm("/login", url.Values{"username": {username}, "password": {"password123"}}, nil)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/home", w.Header().Get("Location"))
	return sessionCookie(t, w)
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestIndexRedirectsToRegister(t *testing.T) {
	app := newTestApp(t)

	w := app.get("/", nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/register", w.Header().Get("Location"))
}

func TestRegisterAndLogin(t *testing.T) {
	app := newTestApp(t)

	w := app.get("/register", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="/register"`)

	w = app.postForm("/register", url.Values{
		"email":    {"alice@example.com"},
		"username": {"alice"},
		"password": {"password123"},
	}, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?flash=registered", w.Header().Get("Location"))

	w = app.get("/login?flash=registered", nil)
	assert.Contains(t, w.Body.String(), "Registration successful! Please log in.")

	w = app.postForm("/login", url.Values{"username": {"alice"}, "password": {"password123"}}, nil)
	require.Equal(t, http.StatusFound, w.Code)
	cookie := sessionCookie(t, w)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.NotEmpty(t, cookie.Value)

	w = app.get("/home", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Welcome, alice")
	assert.Contains(t, w.Body.String(), "No calories logged yet.")
}

func TestRegister_DuplicateIsConflict(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "alice")

	w := app.postForm("/register", url.Values{
		"email":    {"other@example.com"},
		"username": {"alice"},
		"password": {"different1"},
	}, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Username or email already exists.")

	// the first account still logs in with its own password
	w = app.postForm("/login", url.Values{"username": {"alice"}, "password": {"password123"}}, nil)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestRegister_ValidationError(t *testing.T) {
	app := newTestApp(t)

	w := app.postForm("/register", url.Values{
		"email":    {"alice@example.com"},
		"username": {"alice"},
		"password": {"short"},
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "password must be")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "alice")

	wrongPassword := app.postForm("/login", url.Values{"username": {"alice"}, "password": {"nope-nope"}}, nil)
	unknownUser := app.postForm("/login", url.Values{"username": {"mallory"}, "password": {"nope-nope"}}, nil)

	for _, w := range []*httptest.ResponseRecorder{wrongPassword, unknownUser} {
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid credentials")
		assert.Empty(t, w.Result().Cookies())
	}
}

func TestGuardedPagesRedirectWithoutSession(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/home", "/logout"} {
		w := app.get(path, nil)
		assert.Equal(t, http.StatusFound, w.Code, path)
		assert.Equal(t, "/login", w.Header().Get("Location"), path)
	}
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signUp(t, "alice")

	w := app.get("/logout", cookie)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?flash=logged_out", w.Header().Get("Location"))

	// the old cookie no longer opens a session
	w = app.get("/home", cookie)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestLogout_AllSessions(t *testing.T) {
	app := newTestApp(t)
	first := app.signUp(t, "alice")
	w := app.postForm("/login", url.Values{"username": {"alice"}, "password": {"password123"}}, nil)
	require.Equal(t, http.StatusFound, w.Code)
	second := sessionCookie(t, w)

	w = app.get("/logout?all=1", first)
	require.Equal(t, http.StatusFound, w.Code)

	w = app.get("/home", second)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestCapture_AccumulatesAndShowsOnHome(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signUp(t, "alice")

	w := app.capture(cookie, []byte("jpeg bytes"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"calories":250,"daily_total":250,"date":"2024-05-01"}`, w.Body.String())

	app.model.set(`{"calories": 100}`, false)
	w = app.capture(cookie, []byte("jpeg bytes"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"calories":100,"daily_total":350,"date":"2024-05-01"}`, w.Body.String())

	w = app.get("/home", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "May 1, 2024")
	assert.Contains(t, w.Body.String(), "350")

	w = app.get("/history?page=1&page_size=10", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var page capture.HistoryPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, int64(350), page.Entries[0].Calories)
}

func TestCapture_Unauthenticated(t *testing.T) {
	app := newTestApp(t)

	w := app.capture(nil, []byte("jpeg bytes"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
	assert.Zero(t, app.model.calls.Load())
}

func TestCapture_NoFile(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signUp(t, "alice")

	w := app.capture(cookie, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"no file"}`, w.Body.String())
	assert.Zero(t, app.model.calls.Load())
}

func TestCapture_ProseEstimateRejected(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signUp(t, "alice")
	app.model.set(`{"calories": "a lot"}`, false)

	w := app.capture(cookie, []byte("jpeg bytes"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid calorie value")
	entries, err := app.ledger.Recent(context.Background(), app.userID(t, "alice"), 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCapture_EstimatorTimeout(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signUp(t, "alice")
	app.model.set("", true)

	w := app.capture(cookie, []byte("jpeg bytes"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "estimator")
	entries, err := app.ledger.Recent(context.Background(), app.userID(t, "alice"), 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCapture_ConcurrentRequests(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signUp(t, "alice")
	app.model.set(`{"calories": 1}`, false)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := app.capture(cookie, []byte("jpeg bytes"))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	total, err := app.ledger.Total(context.Background(), app.userID(t, "alice"), app.today)
	require.NoError(t, err)
	assert.Equal(t, int64(n), total)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	w := app.get("/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = app.get("/health?deep=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","estimator":"ok"}`, w.Body.String())
}

func TestPrettyDate(t *testing.T) {
	assert.Equal(t, "January 2, 2006", prettyDate("2006-01-02"))
	assert.Equal(t, "May 1, 2024", prettyDate("2024-05-01"))
	assert.Equal(t, "yesterday", prettyDate("yesterday"))
}

func (a *testApp) userID(t *testing.T, username string) string {
	t.Helper()
	u, err := a.users.FindByUsername(context.Background(), username)
	require.NoError(t, err)
	return u.ID
}
