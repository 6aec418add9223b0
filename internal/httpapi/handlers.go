package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DoyleJ11/lcu-draft-client/internal/ws"
)

func GetStatus(src ws.StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := src.Status(r.Context())
		if err != nil {
			http.Error(w, "status unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
