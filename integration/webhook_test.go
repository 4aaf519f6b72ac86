//go:build integration
// +build integration

package integration

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	bridgehttp "shwanortho/clinic-sync-bridge/http"

	. "github.com/smartystreets/goconvey/convey"
)

func TestWebhookAppliesMirrorChangesToTheSource(t *testing.T) {
	Convey("Given the webhook receiver is configured with a shared secret", t, func() {
		purgeSourceClinicTables()

		secret := "integration-secret"
		handler := bridgehttp.NewWebhookHandler(sourceApplier, secret)

		Convey("When a signed change event arrives", func() {
			body := []byte(`{"table": "WhatsAppMessages", "type": "insert", "record": {"MessageID": 301, "PatientID": 201, "Direction": "outbound", "Body": "Your aligners are ready"}}`)
			req := httptest.NewRequest(http.MethodPost, "/api/sync/webhook", bytes.NewReader(body))
			req.Header.Set(bridgehttp.SignatureHeader, signPayload(secret, body))

			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)

			Convey("Then the change should be applied to the source database", func() {
				So(recorder.Code, ShouldEqual, http.StatusOK)
				So(mirrorRowExists(dbs.Source, "WhatsAppMessages", "MessageID", 301), ShouldBeTrue)
			})
		})

		Convey("When an unsigned change event arrives", func() {
			body := []byte(`{"table": "WhatsAppMessages", "type": "insert", "record": {"MessageID": 302}}`)
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/sync/webhook", bytes.NewReader(body)))

			Convey("Then it should be rejected and nothing written", func() {
				So(recorder.Code, ShouldEqual, http.StatusUnauthorized)
				So(mirrorRowExists(dbs.Source, "WhatsAppMessages", "MessageID", 302), ShouldBeFalse)
			})
		})
	})
}

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
