package daemon

import (
	"context"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/radio"
	"github.com/the-lightning-land/stationd/station"
	"github.com/the-lightning-land/stationd/stationdb"
)

// ErrScanUnsupported is returned by ScanWifi when the radio cannot scan
var ErrScanUnsupported = errors.New("radio does not support scanning")

// maybeAttemptSavedWifiConnection is run as a goroutine and attempts a connection
// to the most recently persisted wifi connection
func (d *Daemon) maybeAttemptSavedWifiConnection() {
	defer d.wg.Done()

	wifiConnection, err := d.db.GetWifiConnection()
	if err != nil {
		d.log.Warnf("Could not get wifi connection: %v", err)
		return
	}

	if wifiConnection == nil {
		d.log.Debugf("No saved wifi connection was found")
		return
	}

	d.log.Infof("Will attempt connecting to wifi %v.", wifiConnection.Ssid)

	outcome, err := d.ConnectToWifi(d.ctx, wifiConnection.Ssid, wifiConnection.Password, wifiConnection.AuthMode)
	if err != nil {
		d.log.Errorf("Could not connect to saved wifi: %v", err)
		return
	}

	if outcome != station.Success {
		d.log.Warnf("Saved wifi %v is not reachable", wifiConnection.Ssid)
	}
}

// ConnectToWifi joins the network, records the attempt and saves the
// network once it was joined successfully.
func (d *Daemon) ConnectToWifi(ctx context.Context, ssid string, password string, authMode radio.AuthMode) (station.Outcome, error) {
	if !authMode.Valid() {
		return station.Failure, radio.ErrUnsupportedAuthMode
	}

	d.log.Infof("Connecting to wifi %v using %v", ssid, authMode)

	outcome := station.Failure

	attempt, err := d.coordinator.ConnectAttempt(ctx, ssid, password, authMode)
	if attempt != nil {
		outcome = attempt.Outcome

		addErr := d.db.AddAttempt(stationdb.AttemptFromStation(attempt))
		if addErr != nil {
			d.log.Warnf("Could not record connection attempt: %v", addErr)
		}
	}

	if err != nil {
		return outcome, errors.Errorf("could not connect to wifi %v: %v", ssid, err)
	}

	if outcome == station.Success {
		err = d.SetWifiConnection(&stationdb.WifiConnection{
			Ssid:     ssid,
			Password: password,
			AuthMode: authMode,
		})
		if err != nil {
			d.log.Errorf("Could not save wifi connection: %v", err)
		}
	}

	return outcome, nil
}

func (d *Daemon) SetWifiConnection(connection *stationdb.WifiConnection) error {
	d.log.Infof("Setting wifi connection")

	err := d.db.SetWifiConnection(connection)
	if err != nil {
		return errors.Errorf("failed setting wifi connection: %v", err)
	}

	return nil
}

func (d *Daemon) ScanWifi(ctx context.Context) ([]*radio.AccessPoint, error) {
	if d.scanner == nil {
		return nil, ErrScanUnsupported
	}

	aps, err := d.scanner.Scan(ctx)
	if err != nil {
		return nil, errors.Errorf("could not scan wifi: %v", err)
	}

	return aps, nil
}
