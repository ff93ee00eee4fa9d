package api

import (
	"net/http"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/daemon"
	"github.com/the-lightning-land/stationd/radio"
)

type getNetworksResponse struct {
	Networks []*radio.AccessPoint `json:"networks"`
}

func (a *Api) handleGetNetworks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		aps, err := a.station.ScanWifi(r.Context())
		if errors.Is(err, daemon.ErrScanUnsupported) {
			a.jsonError(w, err.Error(), http.StatusNotImplemented)
			return
		} else if err != nil {
			a.log.Errorf("Could not scan: %v", err)
			a.jsonError(w, "Could not scan for networks", http.StatusInternalServerError)
			return
		}

		a.jsonResponse(w, &getNetworksResponse{
			Networks: aps,
		}, http.StatusOK)
	}
}
