package http

import (
	"net/http"

	"shwanortho/clinic-sync-bridge/sync/state"
)

type stateReader interface {
	Snapshot() state.Status
}

type statusHandler struct {
	store stateReader
}

func NewStatusHandler(store stateReader) http.Handler {
	return &statusHandler{store: store}
}

func (h statusHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, syncResponse{Error: "method not allowed"})
		return
	}

	st := h.store.Snapshot()
	writeJSON(w, http.StatusOK, syncResponse{Success: true, State: &st})
}
