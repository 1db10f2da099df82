package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/wI2L/jsondiff"

	"usdmcore/internal/blob"
	"usdmcore/pkg/domain"
)

func protocolID(r *http.Request) string {
	return mux.Vars(r)["protocolId"]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps typed pipeline errors to their HTTP-equivalent status;
// anything untyped is a 500 with a generic body.
func writeError(w http.ResponseWriter, err error) {
	var perr *domain.PublishError
	if errors.As(err, &perr) {
		writeJSON(w, perr.HTTPStatus(), perr)
		return
	}
	if errors.Is(err, blob.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal", "message": err.Error()})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := protocolID(r)
	doc, _, revision, err := s.svc.LiveDocument(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"protocolId": id, "usdmRevision": revision, "document": doc}
	if s.watcher != nil {
		if watched := s.watcher.Revision(id); watched != "" && watched != revision {
			resp["warning"] = "live document changed on disk since last read"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.svc.Draft(r.Context(), protocolID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if draft == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no_draft"})
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	var req domain.SaveDraftRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}
	req.ProtocolID = protocolID(r)
	res, err := s.svc.SaveDraft(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDraftDiff previews the draft as an RFC 6902 diff between the live
// document and the draft-applied candidate.
func (s *Server) handleDraftDiff(w http.ResponseWriter, r *http.Request) {
	live, candidate, err := s.svc.DraftCandidate(r.Context(), protocolID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	diff, err := jsondiff.CompareJSON(live, candidate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"diff": diff})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	var req domain.PublishRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}
	req.ProtocolID = protocolID(r)
	receipt, err := s.svc.Publish(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleChangeLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.History(r.Context(), protocolID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.VerifyChain(r.Context(), protocolID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
