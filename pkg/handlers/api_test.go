package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/auth"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/services"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/testhelpers"
)

func TestAPI_FullWorkflow(t *testing.T) {
	ts := newTestServer(t, false)
	userID, _ := ts.registerUser(t, "ada@example.com")
	sessionID := ts.startSession(t, userID, "")

	rec := ts.do(t, http.MethodPost, "/api/agents/clarifier/start", map[string]string{"sessionId": sessionID}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var clarifier ClarifierResponse
	decodeBody(t, rec, &clarifier)
	assert.Equal(t, []string{"Which pets are supported?"}, clarifier.Questions)

	rec = ts.do(t, http.MethodPost, "/api/agents/clarifier/submit-answers", map[string]any{
		"sessionId":   sessionID,
		"userAnswers": map[string]string{"Which pets are supported?": "Dogs"},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/agents/conflict-resolver?sessionId="+sessionID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var conflicts ConflictsResponse
	decodeBody(t, rec, &conflicts)
	require.Len(t, conflicts.Conflicts, 1)

	rec = ts.do(t, http.MethodPost, "/api/agents/conflict-resolver/resolve", map[string]any{
		"sessionId":         sessionID,
		"chosenOptionIndex": 1,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resolved MessageResponse
	decodeBody(t, rec, &resolved)
	assert.Equal(t, models.StatusResolved, resolved.Status)

	rec = ts.do(t, http.MethodPost, "/api/agents/validator", map[string]string{"sessionId": sessionID}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var validator ValidatorResponse
	decodeBody(t, rec, &validator)
	assert.Equal(t, models.RiskLow, validator.ValidatorOutput.RiskLevel)

	rec = ts.do(t, http.MethodPost, "/api/agents/prioritizer", map[string]string{"sessionId": sessionID}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var prioritizer PrioritizerResponse
	decodeBody(t, rec, &prioritizer)
	assert.Equal(t, []string{"profiles"}, prioritizer.FinalOutput.MustHave)
	assert.Equal(t, []string{}, prioritizer.FinalOutput.NiceToHave)

	rec = ts.do(t, http.MethodGet, "/api/session/"+sessionID+"/blueprint", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bp services.BlueprintView
	decodeBody(t, rec, &bp)
	assert.Equal(t, "pet social app", bp.UserIdea)
	assert.Equal(t, models.StatusPrioritized, bp.Status)
	require.NotNil(t, bp.ConflictResolution)
	assert.Equal(t, 1, bp.ConflictResolution.ChosenOption)

	rec = ts.do(t, http.MethodGet, "/api/summarize/"+sessionID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary services.SummaryView
	decodeBody(t, rec, &summary)
	assert.Equal(t, "low", summary.Validation.RiskLevel)
	assert.Contains(t, summary.FinalSummary, "Nice-to-Have Features: None")

	rec = ts.do(t, http.MethodPost, "/api/session/"+sessionID+"/finalize", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var finalized FinalizeResponse
	decodeBody(t, rec, &finalized)
	assert.Equal(t, models.StatusComplete, finalized.Status)

	rec = ts.do(t, http.MethodPost, "/api/agents/validator", map[string]string{"sessionId": sessionID}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users/"+userID+"/sessions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list SessionListResponse
	decodeBody(t, rec, &list)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, models.StatusComplete, list.Sessions[0].Status)
}

func TestAPI_ConflictResolverSessionIDSources(t *testing.T) {
	tests := []struct {
		name   string
		method string
		query  bool
	}{
		{"POST body", http.MethodPost, false},
		{"GET body", http.MethodGet, false},
		{"GET query", http.MethodGet, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, false)
			userID, _ := ts.registerUser(t, "ada@example.com")
			sessionID := ts.startSession(t, userID, "")

			rec := ts.do(t, http.MethodPost, "/api/agents/clarifier/start", map[string]string{"sessionId": sessionID}, "")
			require.Equal(t, http.StatusOK, rec.Code)

			path := "/api/agents/conflict-resolver"
			var body any = map[string]string{"sessionId": sessionID}
			if tt.query {
				path += "?sessionId=" + sessionID
				body = nil
			}
			rec = ts.do(t, tt.method, path, body, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), sessionID)
		})
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	ts := newTestServer(t, false)
	userID, _ := ts.registerUser(t, "ada@example.com")
	sessionID := ts.startSession(t, userID, "")
	unknown := "6f1c2a4e-0000-4000-8000-000000000000"

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"start without idea", http.MethodPost, "/api/session/start", map[string]string{"userId": userID}, http.StatusBadRequest, "validation_error", ""},
		{"start for unknown user", http.MethodPost, "/api/session/start", map[string]string{"userIdea": "x", "userId": unknown}, http.StatusNotFound, "not_found", "User not found."},
		{"start with malformed user", http.MethodPost, "/api/session/start", map[string]string{"userIdea": "x", "userId": "abc"}, http.StatusBadRequest, "invalid_user_id", ""},
		{"malformed body", http.MethodPost, "/api/agents/validator", "not an object", http.StatusBadRequest, "invalid_request", ""},
		{"missing session id", http.MethodPost, "/api/agents/validator", map[string]string{}, http.StatusBadRequest, "missing_session_id", ""},
		{"malformed session id", http.MethodPost, "/api/agents/validator", map[string]string{"sessionId": "abc"}, http.StatusBadRequest, "invalid_session_id", ""},
		{"unknown session", http.MethodPost, "/api/agents/validator", map[string]string{"sessionId": unknown}, http.StatusNotFound, "not_found", "Session not found."},
		{"validator before conflicts", http.MethodPost, "/api/agents/validator", map[string]string{"sessionId": sessionID}, http.StatusBadRequest, "precondition_failed", "Conflict resolver agent must be run first."},
		{"prioritizer before validator", http.MethodPost, "/api/agents/prioritizer", map[string]string{"sessionId": sessionID}, http.StatusBadRequest, "precondition_failed", "Validator agent must be run first."},
		{"resolve before conflicts", http.MethodPost, "/api/agents/conflict-resolver/resolve", map[string]any{"sessionId": sessionID, "chosenOptionIndex": 0}, http.StatusBadRequest, "precondition_failed", ""},
		{"blueprint not ready", http.MethodGet, "/api/session/" + sessionID + "/blueprint", nil, http.StatusBadRequest, "not_ready", "Blueprint is not ready. Please run all agents first."},
		{"blueprint for unknown session", http.MethodGet, "/api/session/" + unknown + "/blueprint", nil, http.StatusNotFound, "not_found", ""},
		{"summary with malformed id", http.MethodGet, "/api/summarize/abc", nil, http.StatusBadRequest, "invalid_session_id", ""},
		{"finalize too early", http.MethodPost, "/api/session/" + sessionID + "/finalize", nil, http.StatusBadRequest, "precondition_failed", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			code, msg := errorCode(t, rec)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, msg)
			}
		})
	}
}

func TestAPI_SummaryOfFreshSession(t *testing.T) {
	ts := newTestServer(t, false)
	userID, _ := ts.registerUser(t, "ada@example.com")
	sessionID := ts.startSession(t, userID, "")

	rec := ts.do(t, http.MethodGet, "/api/summarize/"+sessionID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary services.SummaryView
	decodeBody(t, rec, &summary)
	assert.Equal(t, services.RiskNotAssessed, summary.Validation.RiskLevel)
	assert.Equal(t, models.StatusStarted, summary.Status)
}

func TestAPI_AgentFailureHidesModelOutput(t *testing.T) {
	ts := newTestServer(t, false)
	userID, _ := ts.registerUser(t, "ada@example.com")
	sessionID := ts.startSession(t, userID, "")

	ts.override["product analyst"] = `{"questions": [], "secret": "internal-chain-of-thought"}`
	rec := ts.do(t, http.MethodPost, "/api/agents/clarifier/start", map[string]string{"sessionId": sessionID}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	code, msg := errorCode(t, rec)
	assert.Equal(t, "agent_invalid_response", code)
	assert.NotContains(t, rec.Body.String(), "internal-chain-of-thought")
	assert.Contains(t, msg, "clarifier")

	rec = ts.do(t, http.MethodGet, "/api/session/"+sessionID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess models.Session
	decodeBody(t, rec, &sess)
	assert.Equal(t, models.StatusStarted, sess.Status)
	assert.Nil(t, sess.ClarifierOutput)
}

func TestAPI_Users(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/users", map[string]string{
		"username": "ada", "email": "ada@example.com", "password": "s3cret-pass",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created UserCreatedResponse
	decodeBody(t, rec, &created)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "expected token cookie")
	assert.True(t, cookie.HttpOnly)

	rec = ts.do(t, http.MethodPost, "/api/users", map[string]string{
		"username": "ada2", "email": "ADA@example.com", "password": "another-pass",
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/users", map[string]string{"username": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/users/login", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := errorCode(t, rec)
	assert.Equal(t, "invalid_credentials", code)

	rec = ts.do(t, http.MethodPost, "/api/users/login", map[string]string{
		"email": "ada@example.com", "password": "s3cret-pass",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login LoginResponse
	decodeBody(t, rec, &login)
	assert.Equal(t, created.UserID, login.UserID)
	require.NotEmpty(t, login.Token)

	path := "/api/users/" + created.UserID.String()
	rec = ts.do(t, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, path, nil, login.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "ada@example.com")
	assert.False(t, strings.Contains(rec.Body.String(), "assword"))

	rec = ts.do(t, http.MethodGet, "/api/users/6f1c2a4e-0000-4000-8000-000000000000", nil, login.Token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_VerificationRequiresOwner(t *testing.T) {
	ts := newTestServer(t, true)
	ownerID, ownerToken := ts.registerUser(t, "ada@example.com")
	_, otherToken := ts.registerUser(t, "grace@example.com")

	rec := ts.do(t, http.MethodPost, "/api/session/start", map[string]string{
		"userIdea": "pet social app", "userId": ownerID,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/session/start", map[string]string{
		"userIdea": "pet social app", "userId": ownerID,
	}, otherToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	sessionID := ts.startSession(t, ownerID, ownerToken)
	body := map[string]string{"sessionId": sessionID}

	rec = ts.do(t, http.MethodPost, "/api/agents/clarifier/start", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/agents/clarifier/start", body, otherToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, int64(0), ts.model.GenerateResponseCalls.Load())

	rec = ts.do(t, http.MethodGet, "/api/summarize/"+sessionID, nil, otherToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/agents/clarifier/start", body, ownerToken)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAPI_VerificationRejectsForgedTokens(t *testing.T) {
	ts := newTestServer(t, true)
	ownerID, ownerToken := ts.registerUser(t, "ada@example.com")
	sessionID := ts.startSession(t, ownerID, ownerToken)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", testhelpers.SignTestJWT(t, testSecret, testhelpers.TestClaims(ownerID, auth.Issuer, -time.Minute))},
		{"foreign issuer", testhelpers.SignTestJWT(t, testSecret, testhelpers.TestClaims(ownerID, "someone-else", time.Hour))},
		{"wrong secret", testhelpers.SignTestJWT(t, "not-the-secret", testhelpers.TestClaims(ownerID, auth.Issuer, time.Hour))},
		{"no subject", testhelpers.SignTestJWT(t, testSecret, testhelpers.TestClaims("", auth.Issuer, time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/session/"+sessionID, nil, tt.token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	rec := ts.do(t, http.MethodGet, "/api/session/"+sessionID, nil,
		testhelpers.SignTestJWT(t, testSecret, testhelpers.TestClaims(ownerID, auth.Issuer, time.Hour)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_HealthAndInfo(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/info", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info InfoResponse
	decodeBody(t, rec, &info)
	assert.Equal(t, "test", info.Version)
	assert.Len(t, info.Routes, len(routeCatalogue))

	endpoints := make([]string, 0, len(info.Routes))
	for _, r := range info.Routes {
		endpoints = append(endpoints, r.Endpoint)
	}
	assert.Contains(t, endpoints, "POST /api/agents/clarifier/start")
	assert.Contains(t, endpoints, "GET /api/summarize/{id}")
}
