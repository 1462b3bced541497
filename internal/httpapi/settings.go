package httpapi

import (
	"net/http"

	"github.com/antoniostano/mrsmart/internal/phone"
	"github.com/antoniostano/mrsmart/internal/tools"
)

type phoneSettingsResponse struct {
	phone.Settings
	Configured bool `json:"configured"`
}

func (s *Server) handleGetPhoneSettings(w http.ResponseWriter, _ *http.Request) {
	if s.phone == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "phone settings not configured")
		return
	}
	current := s.phone.Get()
	respondJSON(w, http.StatusOK, phoneSettingsResponse{Settings: current.Masked(), Configured: current.Configured()})
}

func (s *Server) handlePutPhoneSettings(w http.ResponseWriter, r *http.Request) {
	if s.phone == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "phone settings not configured")
		return
	}
	var in phone.Settings
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if in.FromNumber != "" {
		if _, err := tools.ValidatePhoneNumber(in.FromNumber); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_from_number", "from_number must be an E.164 phone number")
			return
		}
	}
	updated := s.phone.Update(in)
	respondJSON(w, http.StatusOK, phoneSettingsResponse{Settings: updated.Masked(), Configured: updated.Configured()})
}
