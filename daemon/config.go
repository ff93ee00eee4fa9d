package daemon

import (
	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/radio"
	"github.com/the-lightning-land/stationd/station"
	"github.com/the-lightning-land/stationd/stationdb"
)

type Config struct {
	Coordinator *station.Coordinator
	DB          *stationdb.DB
	Reporter    connectivity.Reporter
	// Scanner is optional, ScanWifi fails with ErrScanUnsupported without it
	Scanner radio.Scanner
	// Api is served on Listen when both are set
	Api    Api
	Listen string
	Logger Logger
}
