package api

import (
	"encoding/json"
	"net/http"

	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/radio"
	"github.com/the-lightning-land/stationd/station"
	"github.com/the-lightning-land/stationd/stationdb"
)

type getStationResponse struct {
	State       connectivity.State `json:"state"`
	Ssid        string             `json:"ssid,omitempty"`
	LastAttempt *stationdb.Attempt `json:"lastAttempt,omitempty"`
}

type postConnectRequest struct {
	Ssid     string `json:"ssid"`
	Password string `json:"password"`
	Auth     string `json:"auth"`
}

type postConnectResponse struct {
	Outcome station.Outcome `json:"outcome"`
}

func (a *Api) handleGetStation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := a.station.Status()
		if err != nil {
			a.log.Errorf("Could not get status: %v", err)
			a.jsonError(w, "Could not get status", http.StatusInternalServerError)
			return
		}

		a.jsonResponse(w, &getStationResponse{
			State:       status.State,
			Ssid:        status.Ssid,
			LastAttempt: status.LastAttempt,
		}, http.StatusOK)
	}
}

func (a *Api) handlePostConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := postConnectRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.Ssid == "" {
			a.jsonError(w, "No ssid given", http.StatusBadRequest)
			return
		}

		authMode, err := radio.ParseAuthMode(req.Auth)
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		outcome, err := a.station.ConnectToWifi(r.Context(), req.Ssid, req.Password, authMode)
		if err != nil {
			a.log.Errorf("Could not connect to %v: %v", req.Ssid, err)
			a.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		a.jsonResponse(w, &postConnectResponse{
			Outcome: outcome,
		}, http.StatusOK)
	}
}
