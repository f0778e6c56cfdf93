package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/agents"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/auth"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/config"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/llm"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/prompts"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/repositories"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/retry"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/services"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/testhelpers"
)

var cannedResponses = map[string]string{
	"product analyst": `{"questions": ["Which pets are supported?"],
		"draftRequirements": {"coreFeatures": ["profiles", "photo feed"], "aesthetics": "playful", "targetAudience": "pet owners"}}`,
	"requirements engineer": `{"conflicts": [{"issue": "Free app vs premium storage", "options": ["Ads", "Subscription"]}]}`,
	"feasibility":           `{"feasibilityReport": {"technical": "ok", "market": "crowded", "business": "freemium"}, "riskLevel": "low"}`,
	"product manager":       `{"mustHave": ["profiles"], "shouldHave": ["photo feed"], "niceToHave": []}`,
}

type testServer struct {
	mux      *http.ServeMux
	model    *llm.MockLLMClient
	users    services.UserService
	tokens   *auth.TokenService
	override map[string]string
}

const testSecret = "handler-test-secret"

func newTestServer(t *testing.T, verification bool) *testServer {
	t.Helper()
	logger := zap.NewNop()
	db := testhelpers.NewSQLiteDB(t)
	sessionRepo := repositories.NewSQLiteSessionRepository(db)
	userRepo := repositories.NewSQLiteUserRepository(db)

	catalogue, err := prompts.Default()
	require.NoError(t, err)

	ts := &testServer{
		mux:      http.NewServeMux(),
		model:    llm.NewMockLLMClient(),
		override: map[string]string{},
	}
	ts.model.GenerateResponseFunc = func(_ context.Context, _ string, system string, _ float64) (*llm.GenerateResponseResult, error) {
		for marker, body := range cannedResponses {
			if strings.Contains(system, marker) {
				if o, ok := ts.override[marker]; ok {
					body = o
				}
				return llm.FencedJSON(body), nil
			}
		}
		return nil, fmt.Errorf("unexpected system message")
	}

	invoker := agents.NewInvoker(ts.model, catalogue, agents.Config{
		Timeout: time.Second,
		Retry:   &retry.Config{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		Breaker: llm.CircuitBreakerConfig{Threshold: 0},
	}, logger)

	ts.tokens, err = auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	sessionService := services.NewSessionService(sessionRepo, userRepo, logger)
	workflow := services.NewWorkflowService(sessionRepo, invoker, logger)
	blueprint := services.NewBlueprintService(sessionRepo)
	ts.users = services.NewUserService(userRepo, logger)

	authService := auth.NewAuthService(ts.tokens, logger)
	authMiddleware := auth.NewMiddleware(authService, verification, logger)
	guard := NewOwnershipGuard(sessionService, authService, verification, logger)
	cookies := auth.DeriveCookieSettings("http://localhost:3000", "")

	cfg := &config.Config{Version: "test", Env: "test"}
	NewHealthHandler(cfg, db.PingContext, invoker.Provider, logger).RegisterRoutes(ts.mux)
	NewInfoHandler("test", logger).RegisterRoutes(ts.mux)
	NewUsersHandler(ts.users, ts.tokens, cookies, logger).RegisterRoutes(ts.mux, authMiddleware)
	NewSessionHandler(sessionService, workflow, blueprint, guard, logger).RegisterRoutes(ts.mux, authMiddleware)
	NewAgentHandler(workflow, guard, logger).RegisterRoutes(ts.mux, authMiddleware)

	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

// registerUser creates a user through the API and returns its ID and a token.
func (ts *testServer) registerUser(t *testing.T, email string) (string, string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/users", map[string]string{
		"username": strings.Split(email, "@")[0],
		"email":    email,
		"password": "s3cret-pass",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created UserCreatedResponse
	decodeBody(t, rec, &created)

	user, err := ts.users.Get(context.Background(), created.UserID)
	require.NoError(t, err)
	token, _, err := ts.tokens.Issue(user)
	require.NoError(t, err)
	return created.UserID.String(), token
}

func (ts *testServer) startSession(t *testing.T, userID, token string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/session/start", map[string]string{
		"userIdea": "pet social app",
		"userId":   userID,
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var started StartSessionResponse
	decodeBody(t, rec, &started)
	require.Equal(t, models.StatusStarted, started.Status)
	return started.SessionID.String()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body map[string]string
	decodeBody(t, rec, &body)
	return body["error"], body["message"]
}
