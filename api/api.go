package api

import (
	"context"
	"net"
	"net/http"

	"github.com/go-errors/errors"
	"github.com/gorilla/mux"
	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/daemon"
	"github.com/the-lightning-land/stationd/radio"
	"github.com/the-lightning-land/stationd/station"
	"github.com/the-lightning-land/stationd/stationdb"
)

// check Api compliance to its interfaces during compile time
var _ daemon.Api = (*Api)(nil)
var _ Station = (*daemon.Daemon)(nil)

// Station is what the api exposes over HTTP.
type Station interface {
	Status() (*daemon.Status, error)
	ConnectToWifi(ctx context.Context, ssid string, password string, authMode radio.AuthMode) (station.Outcome, error)
	ScanWifi(ctx context.Context) ([]*radio.AccessPoint, error)
	Attempts(limit int) ([]*stationdb.Attempt, error)
	CurrentState() connectivity.State
	WaitForStateChange(ctx context.Context, from connectivity.State) bool
}

type Config struct {
	Station Station
	Log     Logger
}

type Api struct {
	station Station
	router  *mux.Router
	log     Logger
}

func New(config *Config) *Api {
	api := &Api{
		station: config.Station,
		router:  mux.NewRouter(),
	}

	if config.Log != nil {
		api.log = config.Log
	} else {
		api.log = noopLogger{}
	}

	api.router.Handle("/api/v1/station", api.handleGetStation()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/station/connect", api.handlePostConnect()).Methods(http.MethodPost)
	api.router.Handle("/api/v1/station/events", api.handleGetStationEvents()).Methods(http.MethodGet)

	api.router.Handle("/api/v1/networks", api.handleGetNetworks()).Methods(http.MethodGet)

	api.router.Handle("/api/v1/attempts", api.handleGetAttempts()).Methods(http.MethodGet)

	return api
}

func (a *Api) SetDaemon(d *daemon.Daemon) {
	a.station = d
}

func (a *Api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *Api) Serve(l net.Listener) error {
	err := http.Serve(l, a.router)
	if err != nil {
		return errors.Errorf("Unable to serve api: %v", err)
	}

	return nil
}
