package http

import (
	"net"
	"net/http"
	"time"

	"shwanortho/clinic-sync-bridge/log"
)

type healthzHandler struct {
	checkAddr []string
	source    Pinger
	mirror    Pinger
}

type Pinger interface {
	Ping() error
}

func NewHealthzHandler(checkAddr []string, source Pinger, mirror Pinger) http.Handler {
	return &healthzHandler{
		checkAddr: checkAddr,
		source:    source,
		mirror:    mirror,
	}
}

func (h healthzHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	healthy := true
	if req.URL.Query().Get("readiness") == "1" {
		healthy = h.checkServices() && h.checkDatabases()
	} else {
		healthy = h.checkDatabases()
	}

	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (h healthzHandler) checkDatabases() bool {
	if err := h.source.Ping(); err != nil {
		log.Logger.Debug("the source database is not available or there is a problem with connectivity")
		return false
	}

	if err := h.mirror.Ping(); err != nil {
		log.Logger.Debug("the mirror database is not available or there is a problem with connectivity")
		return false
	}

	return true
}

func (h healthzHandler) checkServices() bool {
	healthy := true
	for _, host := range h.checkAddr {
		log.Logger.Debugf("checking connectivity to %s", host)
		conn, err := net.DialTimeout("tcp", host, 1*time.Second)
		if err != nil {
			healthy = false
			log.Logger.Debugf("unable to connect to %s", host)
		} else {
			_ = conn.Close()
		}
	}
	return healthy
}
