package daemon

import (
	"context"
	"net"
	"sync"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/radio"
	"github.com/the-lightning-land/stationd/station"
	"github.com/the-lightning-land/stationd/stationdb"
)

type Daemon struct {
	coordinator  *station.Coordinator
	db           *stationdb.DB
	reporter     connectivity.Reporter
	scanner      radio.Scanner
	api          Api
	listen       string
	log          Logger
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	shutdownOnce sync.Once
	apiListeners []net.Listener
	wg           sync.WaitGroup
}

// Status is a snapshot of the station.
type Status struct {
	State connectivity.State `json:"state"`
	// Ssid of the saved network
	Ssid        string             `json:"ssid,omitempty"`
	LastAttempt *stationdb.Attempt `json:"lastAttempt,omitempty"`
}

func NewDaemon(config *Config) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	daemon := &Daemon{
		coordinator: config.Coordinator,
		db:          config.DB,
		reporter:    config.Reporter,
		scanner:     config.Scanner,
		api:         config.Api,
		listen:      config.Listen,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	if config.Logger != nil {
		daemon.log = config.Logger
	} else {
		daemon.log = noopLogger{}
	}

	if daemon.api != nil {
		daemon.api.SetDaemon(daemon)
	}

	return daemon
}

// Run attempts the saved network, serves the api and blocks until Shutdown
// is called.
func (d *Daemon) Run() error {
	d.log.Infof("Starting station daemon...")

	d.wg.Add(1)
	go d.maybeAttemptSavedWifiConnection()

	if d.api != nil && d.listen != "" {
		lis, err := net.Listen("tcp", d.listen)
		if err != nil {
			d.Shutdown()
			d.wg.Wait()
			return errors.Errorf("api unable to listen on %v: %v", d.listen, err)
		}

		d.log.Infof("Serving api on %v", lis.Addr())

		d.apiListeners = append(d.apiListeners, lis)

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()

			err := d.api.Serve(lis)
			if err != nil {
				select {
				case <-d.done:
				default:
					d.log.Errorf("Could not serve api: %v", err)
				}
			}
		}()
	}

	<-d.done

	for _, lis := range d.apiListeners {
		err := lis.Close()
		if err != nil {
			d.log.Warnf("Could not close api listener: %v", err)
		}
	}

	d.wg.Wait()

	d.log.Infof("Stopped station daemon.")

	return nil
}

// Shutdown stops Run and aborts a pending connection attempt.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.cancel()
		close(d.done)
	})
}

func (d *Daemon) Status() (*Status, error) {
	status := &Status{
		State: d.CurrentState(),
	}

	conn, err := d.db.GetWifiConnection()
	if err != nil {
		return nil, errors.Errorf("could not get wifi connection: %v", err)
	}

	if conn != nil {
		status.Ssid = conn.Ssid
	}

	if attempt := d.coordinator.LastAttempt(); attempt != nil {
		status.LastAttempt = stationdb.AttemptFromStation(attempt)
	}

	return status, nil
}

func (d *Daemon) Attempts(limit int) ([]*stationdb.Attempt, error) {
	attempts, err := d.db.Attempts(limit)
	if err != nil {
		return nil, errors.Errorf("could not get attempts: %v", err)
	}

	return attempts, nil
}

func (d *Daemon) CurrentState() connectivity.State {
	if d.reporter == nil {
		return connectivity.Offline
	}

	return d.reporter.CurrentState()
}

func (d *Daemon) WaitForStateChange(ctx context.Context, from connectivity.State) bool {
	if d.reporter == nil {
		<-ctx.Done()
		return false
	}

	return d.reporter.WaitForStateChange(ctx, from)
}
