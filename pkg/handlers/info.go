package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// RouteInfo documents one endpoint in the route catalogue.
type RouteInfo struct {
	Endpoint    string            `json:"endpoint"`
	Description string            `json:"description"`
	Body        map[string]string `json:"body,omitempty"`
	PathParams  map[string]string `json:"pathParams,omitempty"`
	Response    string            `json:"response"`
}

// InfoResponse is the route catalogue served at /api/info.
type InfoResponse struct {
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Description string      `json:"description"`
	Workflow    []string    `json:"workflow"`
	Routes      []RouteInfo `json:"routes"`
}

var workflowSteps = []string{
	"Create a user with POST /api/users and keep the returned userId.",
	"Start a session with your product idea.",
	"Run the clarifier, then optionally submit answers to its questions.",
	"Run the conflict resolver and optionally choose a resolution option.",
	"Run the validator, then the prioritizer.",
	"Fetch the blueprint or the summary, and finalize the session when done.",
}

var sessionIDBody = map[string]string{"sessionId": "string (session UUID)"}

var routeCatalogue = []RouteInfo{
	{
		Endpoint:    "POST /api/users",
		Description: "Creates a new user and sets the token cookie.",
		Body:        map[string]string{"username": "string", "email": "string", "password": "string"},
		Response:    "The new user's ID.",
	},
	{
		Endpoint:    "POST /api/users/login",
		Description: "Logs a user in and sets the token cookie.",
		Body:        map[string]string{"email": "string", "password": "string"},
		Response:    "The user's ID and a token.",
	},
	{
		Endpoint:    "GET /api/users/{id}",
		Description: "Retrieves a user's information. Requires a token.",
		PathParams:  map[string]string{"id": "string (user UUID)"},
		Response:    "The user without the password hash.",
	},
	{
		Endpoint:    "GET /api/users/{id}/sessions",
		Description: "Lists a user's sessions, newest first.",
		PathParams:  map[string]string{"id": "string (user UUID)"},
		Response:    "The sessions with their status.",
	},
	{
		Endpoint:    "POST /api/session/start",
		Description: "Starts a new requirement-gathering session.",
		Body:        map[string]string{"userIdea": "string", "userId": "string (user UUID)"},
		Response:    "The new sessionId and its status.",
	},
	{
		Endpoint:    "GET /api/session/{id}",
		Description: "Retrieves the full session document.",
		PathParams:  map[string]string{"id": "string (session UUID)"},
		Response:    "The session with every stage output so far.",
	},
	{
		Endpoint:    "POST /api/agents/clarifier/start",
		Description: "Runs the clarifier agent on the session's idea.",
		Body:        sessionIDBody,
		Response:    "Clarifying questions and draft requirements.",
	},
	{
		Endpoint:    "POST /api/agents/clarifier/submit-answers",
		Description: "Stores the user's answers to the clarifying questions.",
		Body:        map[string]string{"sessionId": "string (session UUID)", "userAnswers": "object"},
		Response:    "A confirmation message.",
	},
	{
		Endpoint:    "POST /api/agents/conflict-resolver",
		Description: "Analyses the requirements for contradictions. GET with ?sessionId= is also accepted.",
		Body:        sessionIDBody,
		Response:    "The conflicts and their resolution options.",
	},
	{
		Endpoint:    "POST /api/agents/conflict-resolver/resolve",
		Description: "Chooses a resolution option for the conflicts.",
		Body:        map[string]string{"sessionId": "string (session UUID)", "chosenOptionIndex": "integer"},
		Response:    "A confirmation message.",
	},
	{
		Endpoint:    "POST /api/agents/validator",
		Description: "Checks the feasibility of the requirements.",
		Body:        sessionIDBody,
		Response:    "A feasibility report and a risk level.",
	},
	{
		Endpoint:    "POST /api/agents/prioritizer",
		Description: "Sorts the features into must, should and nice to have.",
		Body:        sessionIDBody,
		Response:    "The prioritized feature lists.",
	},
	{
		Endpoint:    "POST /api/session/{id}/finalize",
		Description: "Marks a prioritized session as complete.",
		PathParams:  map[string]string{"id": "string (session UUID)"},
		Response:    "The session's final status.",
	},
	{
		Endpoint:    "GET /api/session/{id}/blueprint",
		Description: "Retrieves the merged blueprint of a prioritized session.",
		PathParams:  map[string]string{"id": "string (session UUID)"},
		Response:    "A document merging every agent output.",
	},
	{
		Endpoint:    "GET /api/summarize/{id}",
		Description: "Summarises a session at any stage.",
		PathParams:  map[string]string{"id": "string (session UUID)"},
		Response:    "Every section so far, stale stages and a text digest.",
	},
}

// InfoHandler serves the route catalogue.
type InfoHandler struct {
	version string
	logger  *zap.Logger
}

// NewInfoHandler creates a new InfoHandler.
func NewInfoHandler(version string, logger *zap.Logger) *InfoHandler {
	return &InfoHandler{version: version, logger: logger}
}

// RegisterRoutes registers the info route on the given mux.
func (h *InfoHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/info", h.Info)
}

// Info handles GET /api/info
func (h *InfoHandler) Info(w http.ResponseWriter, r *http.Request) {
	response := InfoResponse{
		Name:        "Ekaya Blueprint API",
		Version:     h.version,
		Description: "Turns a product idea into a prioritized requirements blueprint through a sequence of agents.",
		Workflow:    workflowSteps,
		Routes:      routeCatalogue,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode info response", zap.Error(err))
	}
}
