package http

import (
	"encoding/json"
	"net/http"

	"shwanortho/clinic-sync-bridge/log"
	"shwanortho/clinic-sync-bridge/sync/processor"
	"shwanortho/clinic-sync-bridge/sync/state"
)

type syncResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Error   string            `json:"error,omitempty"`
	Result  *processor.Result `json:"result,omitempty"`
	State   *state.Status     `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp syncResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Logger.WithError(err).Error("error writing JSON response")
	}
}
