package apiserver

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/scheduler"
)

const defaultPriceWindow = 10 * time.Second

// reserveRequest picks the slot one of three ways: JIT, AOT at an absolute
// slot_time_ms, or AOT lead_ms from now.
type reserveRequest struct {
	Type       string `json:"type" validate:"required,oneof=JIT AOT"`
	Priority   uint8  `json:"priority" validate:"omitempty,min=1,max=10"`
	SlotTimeMs *int64 `json:"slot_time_ms" validate:"omitempty,gt=0"`
	LeadMs     *int64 `json:"lead_ms" validate:"omitempty,min=0,max=60000"`
}

type executeRequest struct {
	Payload []byte `json:"payload"`
}

func (s *Service) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	var (
		res scheduler.Reservation
		err error
	)
	switch {
	case req.Type == "JIT":
		if req.SlotTimeMs != nil || req.LeadMs != nil {
			s.respondError(w, invalid("type", "JIT reservations take no slot_time_ms or lead_ms"))
			return
		}
		res, err = s.scheduler.ReserveJIT(r.Context())
	case req.SlotTimeMs != nil && req.LeadMs != nil:
		s.respondError(w, invalid("slot_time_ms", "set slot_time_ms or lead_ms, not both"))
		return
	case req.SlotTimeMs != nil:
		res, err = s.scheduler.ReserveSlot(r.Context(), time.UnixMilli(*req.SlotTimeMs), codec.ReservationAOT, req.Priority)
	default:
		var lead time.Duration
		if req.LeadMs != nil {
			lead = time.Duration(*req.LeadMs) * time.Millisecond
		}
		res, err = s.scheduler.ReserveAOT(r.Context(), lead, req.Priority)
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, newReservationDTO(res))
}

func (s *Service) handleReservationStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.scheduler.ReservationStatus(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newReservationDTO(res))
}

func (s *Service) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.scheduler.CancelReservation(id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "cancelled": true})
}

// handleExecute takes the payload as base64 in the JSON body.
func (s *Service) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	handle, err := s.scheduler.ExecuteWithGuarantee(r.Context(), req.Payload, id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "execution_id": handle})
}

func (s *Service) handlePreConfirmation(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, newPreConfirmationDTO(s.scheduler.PreConfirmation(mux.Vars(r)["tx"])))
}

// handleSlotPrices samples [start, end] in unix milliseconds. The window
// defaults to the next ten seconds.
func (s *Service) handleSlotPrices(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	start, err := parseOptionalInt64(r, "start", now.UnixMilli())
	if err != nil {
		s.respondError(w, err)
		return
	}
	end, err := parseOptionalInt64(r, "end", time.UnixMilli(start).Add(defaultPriceWindow).UnixMilli())
	if err != nil {
		s.respondError(w, err)
		return
	}

	prices, err := s.scheduler.SlotMarketPrices(time.UnixMilli(start), time.UnixMilli(end))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"items": newSlotPriceDTOs(prices)})
}

func (s *Service) handleNetworkStats(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, newNetworkStatsDTO(s.scheduler.NetworkStats()))
}
