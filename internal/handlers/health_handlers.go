package handlers

import (
	"net/http"

	"github.com/swapsoft/pwdbudget/internal/tenant"
)

// OfficeStatusReporter reports the connection state of every office.
type OfficeStatusReporter interface {
	Status() []tenant.OfficeStatus
}

type HealthResponse struct {
	Status  string                `json:"status"`
	Offices []tenant.OfficeStatus `json:"offices"`
}

// Health reports per-office database status. The service stays up while some
// offices are down, so a partial outage is "degraded", not an error.
func Health(offices OfficeStatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := offices.Status()

		connected := 0
		for _, s := range status {
			if s.Connected {
				connected++
			}
		}

		resp := HealthResponse{Status: "ok", Offices: status}
		code := http.StatusOK
		switch {
		case connected == 0:
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
		case connected < len(status):
			resp.Status = "degraded"
		}
		respondWithJSON(w, code, resp)
	}
}
