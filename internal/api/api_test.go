package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"clearr.app/backend/internal/auth"
	"clearr.app/backend/internal/core"
	"clearr.app/backend/internal/ratelimit"
	"clearr.app/backend/internal/store"
)

type stubGenerator struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail {
		return nil, errors.New("upstream quota exceeded")
	}
	return []string{fmt.Sprintf("softened #%d", g.calls)}, nil
}

type testServer struct {
	srv   *httptest.Server
	gen   *stubGenerator
	mu    sync.Mutex
	codes map[string]string
}

type response struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	StatusCode int             `json:"statusCode"`
	Error      string          `json:"error"`
}

func newTestServer(t *testing.T, otpLimit int) *testServer {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ts := &testServer{gen: &stubGenerator{}, codes: map[string]string{}}
	verifier := auth.NewRedisOTPVerifier(rdb, zap.NewNop(), func(_ context.Context, phone, code string) error {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		ts.codes[phone] = code
		return nil
	})
	limiter, err := ratelimit.New(rdb, "test:otp", otpLimit, time.Minute)
	require.NoError(t, err)

	logger := zap.NewNop()
	issuer := auth.NewIssuer("test-secret", time.Hour)
	modes := core.NewModeService(s, logger, time.Now)
	h := NewHandler(Deps{
		Auth:         core.NewAuthService(s, verifier, issuer, logger, time.Now),
		Users:        core.NewUserService(s, logger, time.Now),
		Modes:        modes,
		Translations: core.NewTranslationService(s, modes, ts.gen, time.Second, logger, time.Now),
		Tokens:       issuer,
		OTPLimiter:   limiter,
		Logger:       logger,
		Development:  true,
	})
	ts.srv = httptest.NewServer(NewRouter(h))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) code(phone string) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.codes[phone]
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, resp.StatusCode, out.StatusCode, "envelope mirrors the HTTP status")
	return resp.StatusCode, out
}

func decodeData[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

type session struct {
	token  string
	userID string
}

func (ts *testServer) signup(t *testing.T, phone, name string) session {
	t.Helper()
	status, _ := ts.do(t, http.MethodPost, "/api/v1/auth/send-otp", "", map[string]string{"phoneNumber": phone})
	require.Equal(t, http.StatusOK, status)

	status, resp := ts.do(t, http.MethodPost, "/api/v1/auth/verify-otp", "", map[string]string{
		"phoneNumber": phone,
		"otpCode":     ts.code("+" + phone),
		"fullName":    name,
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	result := decodeData[core.AuthResult](t, resp)
	require.True(t, result.IsNewUser)
	return session{token: result.Token, userID: result.User.ID}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 10)
	status, resp := ts.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, 10)

	status, resp := ts.do(t, http.MethodPost, "/api/v1/auth/send-otp", "", map[string]string{"phoneNumber": "12"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid phone number format", resp.Message)

	sess := ts.signup(t, "15550104000", "Riley Park")

	status, resp = ts.do(t, http.MethodPost, "/api/v1/auth/send-otp", "", map[string]string{"phoneNumber": "15550104000"})
	assert.Equal(t, http.StatusTooManyRequests, status, "resend is throttled per phone")
	assert.False(t, resp.Success)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/users/"+sess.userID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/users/"+sess.userID, "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, resp = ts.do(t, http.MethodGet, "/api/v1/users/"+sess.userID, sess.token, nil)
	require.Equal(t, http.StatusOK, status)
	user := decodeData[store.User](t, resp)
	assert.Equal(t, "+15550104000", user.PhoneNumber)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/users/someone-else", sess.token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = ts.do(t, http.MethodPost, "/api/v1/auth/update-profile", sess.token, map[string]any{"email": "riley@example.com"})
	require.Equal(t, http.StatusOK, status)
	user = decodeData[store.User](t, resp)
	require.NotNil(t, user.Email)
	assert.Equal(t, "riley@example.com", *user.Email)

	status, resp = ts.do(t, http.MethodPost, "/api/v1/auth/delete-account", sess.token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Account deletion must be confirmed", resp.Message)

	status, _ = ts.do(t, http.MethodPost, "/api/v1/auth/delete-account", sess.token, map[string]any{"confirmDelete": true})
	assert.Equal(t, http.StatusOK, status)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/users/"+sess.userID, sess.token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestOTPRoutesAreRateLimited(t *testing.T) {
	ts := newTestServer(t, 2)
	phones := []string{"15550105000", "15550105001", "15550105002"}

	for _, p := range phones[:2] {
		status, _ := ts.do(t, http.MethodPost, "/api/v1/auth/send-otp", "", map[string]string{"phoneNumber": p})
		require.Equal(t, http.StatusOK, status)
	}
	status, resp := ts.do(t, http.MethodPost, "/api/v1/auth/send-otp", "", map[string]string{"phoneNumber": phones[2]})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "Too many requests, please try again later", resp.Message)
}

func TestModesAndTranslations(t *testing.T) {
	ts := newTestServer(t, 10)
	sess := ts.signup(t, "15550106000", "Alex Kim")
	base := "/api/v1/users/" + sess.userID

	status, resp := ts.do(t, http.MethodPost, "/api/v1/translations", sess.token, map[string]string{"translationInput": "you never listen"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No default mode found. Please create a mode first.", resp.Message)

	status, resp = ts.do(t, http.MethodPost, base+"/modes", sess.token, map[string]any{"name": "W", "description": "Work chats"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Mode name must be at least 2 characters", resp.Message)

	status, resp = ts.do(t, http.MethodPost, base+"/modes", sess.token, map[string]any{
		"name": "Work", "description": "Talking with coworkers", "isDefault": true, "prompt": "Be concise.",
	})
	require.Equal(t, http.StatusCreated, status)
	work := decodeData[core.ModeWithPrompt](t, resp)
	require.NotNil(t, work.Prompt)
	assert.True(t, work.Mode.IsDefault)

	status, resp = ts.do(t, http.MethodPost, base+"/modes", sess.token, map[string]any{
		"name": "Family", "description": "Talking with family",
	})
	require.Equal(t, http.StatusCreated, status)
	family := decodeData[core.ModeWithPrompt](t, resp)

	status, _ = ts.do(t, http.MethodPut, base+"/selected-mode", sess.token, map[string]string{"modeId": family.Mode.ID})
	require.Equal(t, http.StatusOK, status)

	status, resp = ts.do(t, http.MethodGet, base+"/modes", sess.token, nil)
	require.Equal(t, http.StatusOK, status)
	modes := decodeData[[]store.Mode](t, resp)
	require.Len(t, modes, 2)
	assert.Equal(t, family.Mode.ID, modes[0].ID, "default first")

	status, resp = ts.do(t, http.MethodPost, "/api/v1/translations", sess.token, map[string]string{"translationInput": "I want to kill this project"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Cannot process this type of content", resp.Message)
	ts.gen.mu.Lock()
	assert.Equal(t, 0, ts.gen.calls)
	ts.gen.mu.Unlock()

	status, resp = ts.do(t, http.MethodPost, "/api/v1/translations", sess.token, map[string]string{
		"translationInput": "you never listen", "modeId": work.Mode.ID,
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	created := decodeData[core.TranslateResult](t, resp)
	assert.Equal(t, "Work", created.Translation.ModeName)
	id := created.Translation.ID

	status, resp = ts.do(t, http.MethodPost, "/api/v1/translations/"+id+"/regenerate", sess.token, nil)
	require.Equal(t, http.StatusOK, status)
	regen := decodeData[core.RegenerateResult](t, resp)
	assert.Len(t, regen.Translation.Outputs, 2)

	status, _ = ts.do(t, http.MethodPatch, "/api/v1/translations/"+id+"/selected-version", sess.token, map[string]int{"selectedIndex": 5})
	assert.Equal(t, http.StatusBadRequest, status)
	status, resp = ts.do(t, http.MethodPatch, "/api/v1/translations/"+id+"/selected-version", sess.token, map[string]int{"selectedIndex": 1})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decodeData[store.Translation](t, resp).SelectedIndex)

	status, resp = ts.do(t, http.MethodGet, "/api/v1/translations/history/"+sess.userID+"?limit=5", sess.token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]store.Translation](t, resp), 1)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/translations/history/other-user", sess.token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	other := ts.signup(t, "15550106001", "Jordan Lee")
	status, _ = ts.do(t, http.MethodGet, "/api/v1/translations/"+id, other.token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, resp = ts.do(t, http.MethodPost, "/api/v1/translations", other.token, map[string]string{
		"translationInput": "hello", "modeId": work.Mode.ID,
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Access denied to this mode", resp.Message)

	status, resp = ts.do(t, http.MethodGet, base+"/stats", sess.token, nil)
	require.Equal(t, http.StatusOK, status)
	stats := decodeData[core.UserStats](t, resp)
	assert.Equal(t, 1, stats.TranslationsByMode["Work"])

	status, _ = ts.do(t, http.MethodDelete, "/api/v1/translations/"+id, sess.token, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = ts.do(t, http.MethodGet, "/api/v1/translations/"+id, sess.token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = ts.do(t, http.MethodDelete, base+"/modes/"+family.Mode.ID, sess.token, nil)
	require.Equal(t, http.StatusOK, status)
	promoted := decodeData[map[string]store.Mode](t, resp)
	assert.Equal(t, work.Mode.ID, promoted["newDefaultMode"].ID)

}

func TestGenerationFailureExposesErrorInDevelopment(t *testing.T) {
	ts := newTestServer(t, 10)
	sess := ts.signup(t, "15550107000", "Casey Wu")
	status, _ := ts.do(t, http.MethodPost, "/api/v1/users/"+sess.userID+"/modes", sess.token, map[string]any{
		"name": "Casual", "description": "Friends and banter", "isDefault": true,
	})
	require.Equal(t, http.StatusCreated, status)

	ts.gen.mu.Lock()
	ts.gen.fail = true
	ts.gen.mu.Unlock()

	status, resp := ts.do(t, http.MethodPost, "/api/v1/translations", sess.token, map[string]string{"translationInput": "ugh"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to process translation", resp.Message)
	assert.Contains(t, resp.Error, "upstream quota exceeded")

	status, resp = ts.do(t, http.MethodGet, "/api/v1/translations/history/"+sess.userID, sess.token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeData[[]store.Translation](t, resp), "nothing is persisted on failure")
}

func TestStyleExamples(t *testing.T) {
	ts := newTestServer(t, 10)
	sess := ts.signup(t, "15550108000", "Morgan Diaz")

	status, _ := ts.do(t, http.MethodPost, "/api/v1/users/"+sess.userID+"/context", sess.token, map[string]string{"contextExample": " "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp := ts.do(t, http.MethodPost, "/api/v1/users/"+sess.userID+"/context", sess.token, map[string]string{"contextExample": "hey, all good!"})
	require.Equal(t, http.StatusOK, status)
	data := decodeData[map[string][]string](t, resp)
	assert.Equal(t, []string{"hey, all good!"}, data["contextTraining"])
}

func TestRecovererReturnsEnvelope(t *testing.T) {
	h := NewHandler(Deps{Development: true})
	handler := h.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "boom", body.Error)
	assert.NotEmpty(t, body.Stack)
}

func TestUnencodableResponseIsLogged(t *testing.T) {
	observed, logs := observer.New(zap.ErrorLevel)
	h := NewHandler(Deps{Logger: zap.New(observed)})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)

	h.writeSuccess(rec, req, http.StatusOK, "OK", map[string]any{"ratio": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, http.StatusInternalServerError, body.StatusCode)

	entries := logs.FilterMessage("encode response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/v1/health", entries[0].ContextMap()["path"])
	assert.EqualValues(t, http.StatusOK, entries[0].ContextMap()["status"])
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, 10)
	status, resp := ts.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, resp.Success)
}
