package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"net/http"

	"shwanortho/clinic-sync-bridge/log"
	syncpkg "shwanortho/clinic-sync-bridge/sync"
	"shwanortho/clinic-sync-bridge/sync/applier"

	"github.com/pkg/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body,
// computed with the shared webhook secret.
const SignatureHeader = "X-Sync-Signature"

type changeApplier interface {
	Apply(ctx context.Context, c applier.Change) error
}

type webhookPayload struct {
	Table     string                 `json:"table"`
	Type      string                 `json:"type"`
	Record    map[string]interface{} `json:"record"`
	OldRecord map[string]interface{} `json:"old_record"`
}

// webhookHandler applies mirror-side changes to the source database inline.
// Delivery retries are the sender's responsibility; a failed apply is
// reported back and otherwise forgotten, the poller re-covers the row on its
// next pass.
type webhookHandler struct {
	ap     changeApplier
	secret string
}

func NewWebhookHandler(ap changeApplier, secret string) http.Handler {
	if secret == "" {
		log.Logger.Warn("no webhook secret configured, incoming sync webhooks will not be authenticated")
	}

	return &webhookHandler{
		ap:     ap,
		secret: secret,
	}
}

func (h webhookHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, syncResponse{Error: "method not allowed"})
		return
	}

	body, err := ioutil.ReadAll(req.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, syncResponse{Error: "unable to read request body"})
		return
	}

	if h.secret != "" && !h.verifySignature(body, req.Header.Get(SignatureHeader)) {
		log.Logger.Warn("rejected sync webhook with a missing or invalid signature")
		writeJSON(w, http.StatusUnauthorized, syncResponse{Error: "invalid signature"})
		return
	}

	p, err := parseWebhookPayload(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, syncResponse{Error: err.Error()})
		return
	}

	op, err := syncpkg.ParseOperation(p.Type)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, syncResponse{Error: err.Error()})
		return
	}

	c := applier.Change{
		Table:     p.Table,
		Operation: op,
		Record:    p.Record,
		OldRecord: p.OldRecord,
	}

	if err := h.ap.Apply(req.Context(), c); err != nil {
		cause := errors.Cause(err)
		if cause == applier.ErrUnmappedTable || cause == applier.ErrMissingKey {
			writeJSON(w, http.StatusBadRequest, syncResponse{Error: err.Error()})
			return
		}

		log.Logger.WithError(err).Errorf("error applying webhook change to the source database (table: %s)", p.Table)
		writeJSON(w, http.StatusInternalServerError, syncResponse{Error: "error applying change to the source database"})
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{Success: true, Message: "change applied"})
}

func parseWebhookPayload(body []byte) (webhookPayload, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return p, errors.New("request body is not valid JSON")
	}

	if p.Table == "" {
		return p, errors.New("missing table in webhook payload")
	}

	if p.Type == "" {
		return p, errors.New("missing type in webhook payload")
	}

	return p, nil
}

func (h webhookHandler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)

	exp, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	return hmac.Equal(exp, mac.Sum(nil))
}
