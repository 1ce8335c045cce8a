package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

const maxSeedBytes = 1 << 20

// submitResponse is the acknowledgement body for a new investigation
type submitResponse struct {
	InvestigationID     string     `json:"investigation_id"`
	Status              string     `json:"status"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var seed models.Seed
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSeedBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		s.writeError(w, errors.Validationf("malformed seed: %v", err))
		return
	}
	// IDs are assigned server-side; a client-supplied one could collide
	// with or overwrite an existing record.
	seed.InvestigationID = ""

	inv, err := s.coordinator.Submit(r.Context(), seed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, submitResponse{
		InvestigationID:     inv.ID(),
		Status:              string(inv.Status),
		EstimatedCompletion: inv.EstimatedCompletion,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	inv, err := s.coordinator.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.coordinator.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)
	if limit < 1 || limit > 500 {
		s.writeError(w, errors.Validation("limit must be within 1-500"))
		return
	}
	if offset < 0 {
		s.writeError(w, errors.Validation("offset must not be negative"))
		return
	}

	invs, err := s.coordinator.List(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if invs == nil {
		invs = []*models.Investigation{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"investigations": invs,
		"count":          len(invs),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.coordinator.Cancel(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"investigation_id": id,
		"status":           "cancelling",
	})
}

func (s *Server) handleConnectors(w http.ResponseWriter, r *http.Request) {
	all := s.registry.StatusAll()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connectors": all,
		"count":      len(all),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// errorBody is the uniform error envelope
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := errors.KindOf(err)

	var body errorBody
	body.Error.Kind = errors.KindString(kind)
	body.Error.Message = err.Error()
	if kind == errors.KindInternal {
		// Internal detail stays in the logs
		body.Error.Message = "internal error"
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, httpStatus(kind), body)
}

func httpStatus(kind errors.Kind) int {
	switch kind {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindNotReady:
		return http.StatusConflict
	case errors.KindUnauthorized:
		return http.StatusForbidden
	case errors.KindSecurityRejected:
		return http.StatusUnprocessableEntity
	case errors.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response write failed", "error", err)
	}
}

func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
