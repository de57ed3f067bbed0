// File: internal/control/handlers.go
package control

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/engine"
)

// maxBodyBytes caps command bodies; programs are small.
const maxBodyBytes = 1 << 20

var (
	_ Controller = (*engine.Executor)(nil)
	_ URLSource  = (schemas.Host)(nil)
)

// Handlers serves the command API.
type Handlers struct {
	log  *zap.Logger
	exec Controller
	urls URLSource
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, exec Controller, urls URLSource) *Handlers {
	return &Handlers{
		log:  logger.Named("control_handlers"),
		exec: exec,
		urls: urls,
	}
}

// RegisterRoutes mounts /healthz and the /api/v1 routes on r. The api
// middlewares run before every /api/v1 handler.
func (h *Handlers) RegisterRoutes(r chi.Router, api ...func(http.Handler) http.Handler) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(api...)
		// Browsers only send JSON cross-origin after a CORS preflight.
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/command", h.HandleCommand)
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleCommand decodes a CommandRequest and routes it.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	h.log.Info("Received command", zap.String("command", req.Command))

	switch strings.ToLower(req.Command) {
	case CmdStart:
		h.handleStart(w, r, req.Params)
	case CmdStop:
		h.handleStop(w, r)
	case CmdSave:
		h.handleSave(w, r, req.Params)
	case CmdStatus:
		h.handleStatus(w, r)
	case CmdCurrentURL:
		h.handleCurrentURL(w, r)
	default:
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (h *Handlers) handleStart(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	params, err := decodeParams[ProgramParams](raw)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid parameters for start: %v", err))
		return
	}

	if len(params.Program) == 0 || string(params.Program) == "null" {
		err = h.exec.StartSaved(r.Context())
	} else {
		program, decodeErr := schemas.Deserialize(params.Program)
		if decodeErr != nil {
			h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid program: %v", decodeErr))
			return
		}
		err = h.exec.Start(r.Context(), program)
	}
	if err != nil {
		h.respondWithFailure(w, "start", err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, nil)
}

func (h *Handlers) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.exec.Stop(r.Context()); err != nil {
		h.respondWithFailure(w, "stop", err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, nil)
}

func (h *Handlers) handleSave(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	params, err := decodeParams[ProgramParams](raw)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid parameters for save: %v", err))
		return
	}
	if len(params.Program) == 0 {
		h.respondWithError(w, http.StatusBadRequest, "Program parameter is required.")
		return
	}
	program, err := schemas.Deserialize(params.Program)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid program: %v", err))
		return
	}
	if err := h.exec.Save(r.Context(), program); err != nil {
		h.respondWithFailure(w, "save", err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, nil)
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.exec.Status(r.Context())
	if err != nil {
		h.respondWithFailure(w, "status", err)
		return
	}
	if snap.Program == nil {
		snap.Program = schemas.Program{}
	}
	h.respondWithSuccess(w, http.StatusOK, snap)
}

func (h *Handlers) handleCurrentURL(w http.ResponseWriter, r *http.Request) {
	if h.urls == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "No browser is attached.")
		return
	}
	url, err := h.urls.ActiveURL(r.Context())
	if err != nil {
		h.respondWithFailure(w, "current-url", err)
		return
	}
	h.respondWithSuccess(w, http.StatusOK, URLResult{URL: url})
}

// statusFor maps an executor error to its HTTP status.
func statusFor(err error) int {
	switch {
	case schemas.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, schemas.ErrNoActivePage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) respondWithFailure(w http.ResponseWriter, command string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.log.Error("Command failed", zap.String("command", command), zap.Error(err))
	} else {
		h.log.Info("Command rejected", zap.String("command", command), zap.Error(err))
	}
	h.respondWithError(w, code, err.Error())
}

// decodeParams decodes the params object into T. Absent params yield T's zero value.
func decodeParams[T any](raw json.RawMessage) (T, error) {
	var result T
	if len(raw) == 0 || string(raw) == "null" {
		return result, nil
	}
	err := json.Unmarshal(raw, &result)
	return result, err
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, CommandResponse{Success: false, Status: "error", Error: message})
}

// respondWithSuccess sends a standardized JSON success response.
func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	h.respond(w, statusCode, CommandResponse{Success: true, Status: "success", Data: data})
}

func (h *Handlers) respond(w http.ResponseWriter, statusCode int, resp CommandResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
