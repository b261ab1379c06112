// Package api exposes the pipeline orchestrator and history store over HTTP
// and MCP. The HTTP surface mirrors the upstream frontend contract: stage
// endpoints report failures in the response body rather than failing the
// request.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/kalambet/voicepipe/internal/pipeline"
)

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Orchestrator  *pipeline.Orchestrator
	DefaultUserID int64
	// AllowedOrigins is the CORS origin allow-list for browser clients.
	AllowedOrigins []string
}

// NewHandler builds the chi router with all pipeline and history endpoints.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", handleHealth)
	r.Get("/", handleRoot(deps))
	r.Get("/users", handleListUsers(deps))
	r.Get("/users/{id}", handleGetUser(deps))
	r.Get("/users/{id}/atot", handleGetUserColumn(deps, columnRecognized))
	r.Get("/users/{id}/ttot", handleGetUserColumn(deps, columnGenerated))
	r.Get("/atot", handleRecognize(deps))
	r.Get("/ttot", handleGenerate(deps))
	r.Post("/process-audio", handleProcessAudio(deps))
	r.Post("/run-full-pipeline", handleRunPipeline(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// requestUserID resolves the target user: explicit ?user_id= wins, the
// configured default user otherwise.
func requestUserID(r *http.Request, deps Deps) (int64, error) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return deps.DefaultUserID, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func handleRoot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := deps.Orchestrator.History(deps.DefaultUserID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading user history: %v", err)
			return
		}
		writeJSON(w, map[string]any{
			"message": "This is the Backend Server",
			"user":    h,
		})
	}
}

func handleListUsers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		histories, err := deps.Orchestrator.Histories()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing users: %v", err)
			return
		}
		writeJSON(w, histories)
	}
}

// pathUserID parses {id} and checks the user is known; the typed user
// endpoints 404 on unknown users instead of lazily creating them.
func pathUserID(w http.ResponseWriter, r *http.Request, deps Deps) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user id")
		return 0, false
	}
	exists, err := deps.Orchestrator.UserExists(id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "checking user: %v", err)
		return 0, false
	}
	if !exists {
		httpError(w, http.StatusNotFound, "not_found", "User not found")
		return 0, false
	}
	return id, true
}

func handleGetUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUserID(w, r, deps)
		if !ok {
			return
		}
		h, err := deps.Orchestrator.History(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading history: %v", err)
			return
		}
		writeJSON(w, h)
	}
}

type historyColumn int

const (
	columnRecognized historyColumn = iota
	columnGenerated
)

func handleGetUserColumn(deps Deps, col historyColumn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUserID(w, r, deps)
		if !ok {
			return
		}
		h, err := deps.Orchestrator.History(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading history: %v", err)
			return
		}
		switch col {
		case columnRecognized:
			writeJSON(w, map[string]any{"user_id": id, "atot_text": h.RecognizedTexts})
		case columnGenerated:
			writeJSON(w, map[string]any{"user_id": id, "ttot_text": h.GeneratedTexts})
		}
	}
}

func handleRecognize(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requestUserID(r, deps)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user_id")
			return
		}
		view, err := deps.Orchestrator.RunRecognize(r.Context(), userID)
		if err != nil {
			stageError(w, "speech recognition service call failed: %v", err)
			return
		}
		writeJSON(w, view)
	}
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requestUserID(r, deps)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user_id")
			return
		}
		view, err := deps.Orchestrator.RunGenerate(r.Context(), userID)
		if err != nil {
			stageError(w, "text generation service call failed: %v", err)
			return
		}
		writeJSON(w, view)
	}
}

func handleProcessAudio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requestUserID(r, deps)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user_id")
			return
		}
		result, err := deps.Orchestrator.ProcessAudio(r.Context(), userID)
		if errors.Is(err, pipeline.ErrNoGeneratedText) {
			stageError(w, "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recording attempt: %v", err)
			return
		}
		writeJSON(w, result)
	}
}

func handleRunPipeline(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requestUserID(r, deps)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user_id")
			return
		}
		writeJSON(w, deps.Orchestrator.Run(r.Context(), userID))
	}
}
