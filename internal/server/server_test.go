package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"FitCoach_V0.1/internal/config"
	"FitCoach_V0.1/internal/fitness"
	"FitCoach_V0.1/internal/geminiservice"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const examplePlan = `{"diet_plan":[{"name":"Breakfast","calories":400,"macros":{"protein_g":30,"carbs_g":40,"fat_g":12}}],` +
	`"gym_plan":[{"day":"Mon","exercises":[{"name":"Squat","sets":3,"reps":10}]}]}`

const profileJSON = `{"age":30,"gender":"male","height_cm":180,"weight_kg":85,"goal":"lose_weight"}`

// fakeGemini stands in for the generation endpoint.
type fakeGemini struct {
	mu     sync.Mutex
	status int
	body   string
	calls  int
}

func (f *fakeGemini) set(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.body = status, body
}

func (f *fakeGemini) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	w.WriteHeader(f.status)
	_, _ = io.WriteString(w, f.body)
}

func testConfig(endpoint string) config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		Gemini: config.GeminiConfig{
			APIKey:           "test-key",
			Endpoint:         endpoint,
			Timeout:          2 * time.Second,
			MaxResponseBytes: 1 << 20,
		},
		Session: config.SessionConfig{
			Secret:      "0123456789abcdef0123456789abcdef",
			CookieName:  "fitcoach_session",
			TTL:         time.Hour,
			MaxSessions: 16,
		},
		App: config.AppConfig{Env: "test"},
	}
}

type testApp struct {
	gemini  *fakeGemini
	backend *httptest.Server
	handler http.Handler
}

func newTestApp(t *testing.T, mutate ...func(*config.Config)) *testApp {
	t.Helper()
	fake := &fakeGemini{status: http.StatusOK, body: examplePlan}
	backend := httptest.NewServer(fake)
	t.Cleanup(backend.Close)

	cfg := testConfig(backend.URL)
	for _, m := range mutate {
		m(&cfg)
	}
	client := geminiservice.NewClient(geminiservice.ClientConfig{
		Endpoint: cfg.Gemini.Endpoint,
		Timeout:  cfg.Gemini.Timeout,
	})
	return &testApp{
		gemini:  fake,
		backend: backend,
		handler: New(cfg, client).RegisterRoutes(),
	}
}

// browser keeps the session cookie between requests like a real browser.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (a *testApp) browser(t *testing.T) *browser {
	return &browser{t: t, handler: a.handler, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	b.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) postJSON(path, body string) *httptest.ResponseRecorder {
	return b.do(http.MethodPost, path, echo.MIMEApplicationJSON, body)
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(http.MethodGet, path, "", "")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestIndex_RendersPageAndStartsSession(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	rec := b.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AI Fitness Coach")
	assert.Contains(t, rec.Body.String(), "Weight Loss")
	assert.Contains(t, b.cookies, "fitcoach_session")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGeneratePlan_EndToEnd(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	rec := b.postJSON("/plan", profileJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	plan := decode[fitness.PlanResponse](t, rec)
	require.Len(t, plan.DietPlan, 1)
	require.Len(t, plan.GymPlan, 1)
	assert.Equal(t, "Breakfast", plan.DietPlan[0].Name)
	assert.Equal(t, "Mon", plan.GymPlan[0].Day)
	assert.Equal(t, 1, app.gemini.Calls())

	rec = b.get("/plan")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, plan, decode[fitness.PlanResponse](t, rec))

	rec = b.get("/plan/download")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "ai_fitness_plan.txt")
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/plain"))
	assert.Contains(t, rec.Body.String(), "--- DIET PLAN ---")
	assert.Contains(t, rec.Body.String(), "--- GYM/EXERCISE PLAN ---")
	assert.Contains(t, rec.Body.String(), "Squat")

	rec = b.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Breakfast")
}

func TestGeneratePlan_FormEncoded(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	form := url.Values{}
	form.Set("age", "41")
	form.Set("gender", "Female")
	form.Set("height_cm", "165")
	form.Set("weight_kg", "70.5")
	form.Set("goal", "maintain")
	form.Set("diet_preference", "vegan")

	rec := b.do(http.MethodPost, "/plan", echo.MIMEApplicationForm, form.Encode())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestGeneratePlan_FailuresKeepPriorPlan(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	require.Equal(t, http.StatusOK, b.postJSON("/plan", profileJSON).Code)
	require.Equal(t, http.StatusCreated, b.postJSON("/progress", `{"date":"2024-05-02","weight_kg":84.2}`).Code)
	require.Equal(t, http.StatusCreated, b.postJSON("/progress", `{"date":"2024-05-01","weight_kg":85}`).Code)
	before := b.get("/plan").Body.String()
	progressBefore := b.get("/progress").Body.String()
	require.Len(t, decode[ProgressChart](t, b.get("/progress")).Entries, 2)

	cases := []struct {
		name    string
		status  int
		body    string
		kind    string
		message string
	}{
		{"server error", http.StatusInternalServerError, "boom", "transport_error", "Could not reach the service, try again."},
		{"not json", http.StatusOK, "I cannot help with that.", "malformed_response", "The service returned an unexpected answer."},
		{"missing gym plan", http.StatusOK, `{"diet_plan":[{"name":"Breakfast","calories":400}]}`, "incomplete_response", "The service returned an unexpected answer."},
		{"empty diet plan", http.StatusOK, `{"diet_plan":[],"gym_plan":[{"day":"Mon","exercises":[{"name":"Squat","sets":3,"reps":10}]}]}`, "incomplete_response", "The service returned an unexpected answer."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app.gemini.set(tc.status, tc.body)

			rec := b.postJSON("/plan", profileJSON)
			require.Equal(t, http.StatusBadGateway, rec.Code)
			body := decode[map[string]string](t, rec)
			assert.Equal(t, tc.kind, body["kind"])
			assert.Equal(t, tc.message, body["error"])

			assert.Equal(t, before, b.get("/plan").Body.String())
			assert.Equal(t, progressBefore, b.get("/progress").Body.String())
		})
	}
}

func TestGeneratePlan_MissingAPIKey(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.Gemini.APIKey = "" })
	b := app.browser(t)

	rec := b.postJSON("/plan", profileJSON)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "transport_error", decode[map[string]string](t, rec)["kind"])
	assert.Equal(t, 0, app.gemini.Calls())
}

func TestGeneratePlan_InvalidProfile(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	for _, body := range []string{
		`{"age":0,"gender":"male","height_cm":180,"weight_kg":85,"goal":"lose_weight"}`,
		`{"age":30,"gender":"robot","height_cm":180,"weight_kg":85,"goal":"lose_weight"}`,
		`{"age":30,"gender":"male","height_cm":300,"weight_kg":85,"goal":"lose_weight"}`,
		`{"age":30,"gender":"male","height_cm":180,"weight_kg":85,"goal":"fly"}`,
		`{"age":"thirty"}`,
		`not json`,
	} {
		rec := b.postJSON("/plan", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, 0, app.gemini.Calls())
}

func TestGeneratePlan_RateLimitedPerSession(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{PlansPerMinute: 1, Burst: 1}
	})
	b := app.browser(t)

	require.Equal(t, http.StatusOK, b.postJSON("/plan", profileJSON).Code)
	assert.Equal(t, http.StatusTooManyRequests, b.postJSON("/plan", profileJSON).Code)

	other := app.browser(t)
	assert.Equal(t, http.StatusOK, other.postJSON("/plan", profileJSON).Code)
}

func TestPlan_NoneYet(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	assert.Equal(t, http.StatusNotFound, b.get("/plan").Code)
	assert.Equal(t, http.StatusNotFound, b.get("/plan/download").Code)
}

func TestProgress_OrderedByDate(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	for _, body := range []string{
		`{"date":"2024-05-03","weight_kg":83.1}`,
		`{"date":"2024-05-01","weight_kg":85}`,
		`{"date":"2024-05-02","weight_kg":84.2}`,
	} {
		require.Equal(t, http.StatusCreated, b.postJSON("/progress", body).Code)
	}

	rec := b.get("/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	chart := decode[ProgressChart](t, rec)
	assert.Equal(t, []string{"2024-05-01", "2024-05-02", "2024-05-03"}, chart.Labels)
	assert.Equal(t, []float64{85, 84.2, 83.1}, chart.Weights)
	assert.Len(t, chart.Entries, 3)
}

func TestProgress_DefaultsToToday(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	rec := b.postJSON("/progress", `{"weight_kg":80}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	chart := decode[ProgressChart](t, rec)
	require.Len(t, chart.Labels, 1)
	assert.Equal(t, time.Now().Format(fitness.DateLayout), chart.Labels[0])
}

func TestProgress_Rejects(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	for _, body := range []string{
		`{"date":"2024-05-01","weight_kg":10}`,
		`{"date":"2024-05-01","weight_kg":250}`,
		`{"date":"05/01/2024","weight_kg":80}`,
		`{"date":"2024-05-01"}`,
	} {
		assert.Equal(t, http.StatusBadRequest, b.postJSON("/progress", body).Code, body)
	}

	chart := decode[ProgressChart](t, b.get("/progress"))
	assert.Empty(t, chart.Entries)
}

func TestSessions_AreIsolated(t *testing.T) {
	app := newTestApp(t)
	alice, bob := app.browser(t), app.browser(t)

	require.Equal(t, http.StatusOK, alice.postJSON("/plan", profileJSON).Code)
	require.Equal(t, http.StatusCreated, alice.postJSON("/progress", `{"date":"2024-05-01","weight_kg":85}`).Code)

	assert.Equal(t, http.StatusNotFound, bob.get("/plan").Code)
	assert.Empty(t, decode[ProgressChart](t, bob.get("/progress")).Entries)
}

func TestEndSession_DropsState(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	require.Equal(t, http.StatusOK, b.postJSON("/plan", profileJSON).Code)
	require.Equal(t, http.StatusCreated, b.postJSON("/progress", `{"weight_kg":85}`).Code)

	rec := b.postJSON("/session/end", "{}")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, b.cookies, "fitcoach_session")

	assert.Equal(t, http.StatusNotFound, b.get("/plan").Code)
	assert.Empty(t, decode[ProgressChart](t, b.get("/progress")).Entries)
}

func TestSession_TamperedCookieStartsFresh(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	require.Equal(t, http.StatusOK, b.postJSON("/plan", profileJSON).Code)

	b.cookies["fitcoach_session"] = &http.Cookie{Name: "fitcoach_session", Value: "forged"}
	assert.Equal(t, http.StatusNotFound, b.get("/plan").Code)
}

func TestWebsocket_RefreshOnProgress(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.handler)
	defer srv.Close()

	b := app.browser(t)
	b.get("/")
	cookie := b.cookies["fitcoach_session"]
	require.NotNil(t, cookie)

	header := http.Header{}
	header.Set("Cookie", cookie.Name+"="+cookie.Value)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	// The connection registers asynchronously; keep logging until the push arrives.
	received := make(chan string, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- string(msg)
		}
		close(received)
	}()

	require.Eventually(t, func() bool {
		b.postJSON("/progress", `{"weight_kg":80}`)
		select {
		case msg := <-received:
			return msg == "REFRESH"
		default:
			return false
		}
	}, 3*time.Second, 50*time.Millisecond)
}

func TestCORS_OnlyConfiguredOrigins(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	req := httptest.NewRequest(http.MethodGet, "/progress", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example.com")
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	app = newTestApp(t, func(c *config.Config) {
		c.Server.AllowedOrigins = []string{"https://fit.example.com"}
	})
	for origin, want := range map[string]string{
		"https://fit.example.com":  "https://fit.example.com",
		"https://evil.example.com": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/progress", nil)
		req.Header.Set(echo.HeaderOrigin, origin)
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Header().Get(echo.HeaderAccessControlAllowOrigin), origin)
	}
}

func TestRateLimit_IgnoresSpoofedForwardedFor(t *testing.T) {
	app := newTestApp(t)

	limited := false
	for i := 0; i < 100 && !limited; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)
		limited = rec.Code == http.StatusTooManyRequests
	}
	assert.True(t, limited, "rotating X-Forwarded-For must not bypass the per-IP limit")
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	rec := app.browser(t).get("/health")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "online", body["status"])
	assert.Contains(t, body, "sessions")
}
