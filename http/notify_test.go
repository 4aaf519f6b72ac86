package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewNotifyHandler(t *testing.T) {
	if nil == NewNotifyHandler(&mockNotifier{}) {
		t.Errorf("got nil, expected a http.Handler instance")
	}
}

func TestNotifyHandler_ServeHTTP(t *testing.T) {
	n := &mockNotifier{}
	handler := NewNotifyHandler(n)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/sync/queue-notify", nil))

	if recorder.Code != http.StatusAccepted {
		t.Errorf("expected 202 response code, but got %d", recorder.Code)
	}

	if n.calls != 1 {
		t.Errorf("expected 1 notify call, but got %d", n.calls)
	}
}

func TestNotifyHandler_ServeHTTP_WithGetRequest(t *testing.T) {
	n := &mockNotifier{}
	handler := NewNotifyHandler(n)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/sync/queue-notify", nil))

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 response code, but got %d", recorder.Code)
	}

	if n.calls > 0 {
		t.Errorf("expected no notify calls, but got %d", n.calls)
	}
}

type mockNotifier struct {
	calls int
}

func (m *mockNotifier) Notify() {
	m.calls++
}
