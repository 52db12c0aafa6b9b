package apiserver

import (
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"

	"github.com/coldbell/chronos/backend/internal/errs"
)

// Size is range-checked by the coordinator so the caller sees
// InvalidBatchSize rather than a generic validation failure.
type createBatchRequest struct {
	Creator string `json:"creator" validate:"required"`
	Size    int    `json:"size"`
}

type failBatchRequest struct {
	ErrorCode uint16 `json:"error_code"`
}

func (s *Service) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	creator, err := solana.PublicKeyFromBase58(req.Creator)
	if err != nil {
		s.respondError(w, errs.Wrap(errs.KindInvalidArgument, req.Creator, err, "invalid creator"))
		return
	}

	b, err := s.batches.CreateBatch(creator, req.Size)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, newBatchDTO(b))
}

func (s *Service) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.batches.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newBatchDTO(b))
}

func (s *Service) handleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.batches.Execute(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newBatchDTO(b))
}

func (s *Service) handleFailBatch(w http.ResponseWriter, r *http.Request) {
	var req failBatchRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	b, err := s.batches.MarkFailed(mux.Vars(r)["id"], req.ErrorCode)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newBatchDTO(b))
}

func (s *Service) handleOrchestratorStats(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, newOrchestratorStatsDTO(s.batches.Stats()))
}
