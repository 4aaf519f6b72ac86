package http

import (
	"context"
	"encoding/json"
	"net/http"

	"shwanortho/clinic-sync-bridge/log"
	"shwanortho/clinic-sync-bridge/sync/processor"
)

type drainer interface {
	DrainOnce(ctx context.Context) (processor.Result, error)
}

type triggerPayload struct {
	Direction string `json:"direction"`
}

// triggerHandler drains the outbox queue inline and reports the outcome,
// so that operators do not have to wait for the next scheduled drain.
type triggerHandler struct {
	d drainer
}

func NewTriggerHandler(d drainer) http.Handler {
	return &triggerHandler{d: d}
}

func (h triggerHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, syncResponse{Error: "method not allowed"})
		return
	}

	var p triggerPayload
	if req.Body != nil {
		// the body is optional, but only the forward queue drain can run on
		// demand; the reverse direction is owned by the poller
		if err := json.NewDecoder(req.Body).Decode(&p); err == nil {
			if p.Direction != "" && p.Direction != "sql-to-postgres" {
				writeJSON(w, http.StatusBadRequest, syncResponse{Error: "unknown sync direction"})
				return
			}
		}
	}

	res, err := h.d.DrainOnce(req.Context())
	if err != nil {
		log.Logger.WithError(err).Error("error draining the sync queue from a manual trigger")
		writeJSON(w, http.StatusInternalServerError, syncResponse{Error: "error draining the sync queue"})
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{Success: true, Message: "sync queue drained", Result: &res})
}
