package api

import (
	"net/http"
	"strconv"

	"github.com/the-lightning-land/stationd/stationdb"
)

const defaultAttemptsLimit = 20

type getAttemptsResponse struct {
	Attempts []*stationdb.Attempt `json:"attempts"`
}

func (a *Api) handleGetAttempts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultAttemptsLimit

		if l := r.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 0 {
				a.jsonError(w, "Invalid limit "+l, http.StatusBadRequest)
				return
			}

			limit = n
		}

		attempts, err := a.station.Attempts(limit)
		if err != nil {
			a.log.Errorf("Could not get attempts: %v", err)
			a.jsonError(w, "Could not get attempts", http.StatusInternalServerError)
			return
		}

		a.jsonResponse(w, &getAttemptsResponse{
			Attempts: attempts,
		}, http.StatusOK)
	}
}
