package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/config"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/llm"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/repositories"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/testhelpers"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.Equal(t, 0, execute(cmd))
	assert.Equal(t, "ekaya-blueprint "+Version+"\n", out.String())
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"serve", "migrate", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	assert.NotNil(t, cmd.Flags().Lookup("config"))
}

func TestEphemeralSecret(t *testing.T) {
	a, err := ephemeralSecret()
	require.NoError(t, err)
	b, err := ephemeralSecret()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func testConfig() *config.Config {
	return &config.Config{
		Version:  "test",
		Env:      "test",
		Database: config.DatabaseConfig{Type: "sqlite"},
		LLM:      config.LLMConfig{Provider: "openai"},
		Agents: config.AgentsConfig{
			Timeout:    time.Second,
			MaxRetries: 0,
		},
		Auth: config.AuthConfig{
			TokenTTL: time.Hour,
			BaseURL:  "http://localhost:3000",
		},
	}
}

func TestNewServer_RoutesAndMiddleware(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	st := &store{
		sessions: repositories.NewSQLiteSessionRepository(db),
		users:    repositories.NewSQLiteUserRepository(db),
		ping:     db.PingContext,
		close:    func() {},
	}

	handler, err := newServer(testConfig(), st, llm.NewMockLLMClient(), zap.NewNop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"username":"ada","email":"ada@example.com","password":"secret1"}`
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/users/register", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		UserID string `json:"userId"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = httptest.NewRecorder()
	start := `{"userIdea":"A recipe sharing app","userId":"` + created.UserID + `"}`
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/start", strings.NewReader(start)))
	assert.Equal(t, http.StatusCreated, rec.Code)
}
