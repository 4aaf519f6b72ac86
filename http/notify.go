package http

import "net/http"

type notifier interface {
	Notify()
}

// notifyHandler lets database triggers nudge the queue processor as soon as
// new outbox rows are committed, instead of waiting for the drain interval.
type notifyHandler struct {
	n notifier
}

func NewNotifyHandler(n notifier) http.Handler {
	return &notifyHandler{n: n}
}

func (h notifyHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, syncResponse{Error: "method not allowed"})
		return
	}

	h.n.Notify()
	writeJSON(w, http.StatusAccepted, syncResponse{Success: true, Message: "queue processor notified"})
}
