package pceapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pcehq/pce/pkg/approval"
)

func (s *Server) handleApprovalsList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	pending, err := s.deps.Gate.Pending(ctx)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	all, err := s.deps.Gate.All(ctx)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending, "items": all})
}

type actorNotesRequest struct {
	Actor string `json:"actor"`
	Notes string `json:"notes"`
}

type actorReasonRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (s *Server) handleApprovalApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req actorNotesRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	a, err := s.deps.Gate.Approve(ctx, id, req.Actor, req.Notes)
	if err != nil {
		writeApprovalErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleApprovalReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req actorReasonRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	a, err := s.deps.Gate.Reject(ctx, id, req.Actor, req.Reason)
	if err != nil {
		writeApprovalErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleApprovalOverride(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req actorNotesRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	a, err := s.deps.Gate.Override(ctx, id, req.Actor, req.Notes)
	if err != nil {
		writeApprovalErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func writeApprovalErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		WriteNotFound(w, "approval_not_found")
	case errors.Is(err, approval.ErrAlreadyTerminal):
		WriteConflict(w, "approval_already_terminal")
	case errors.Is(err, approval.ErrInsufficientBudget):
		WriteConflict(w, "insufficient_budget_for_purchase")
	default:
		WriteInternal(w, err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteBadRequest(w, "invalid request body")
		return err
	}
	return nil
}
