package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/the-lightning-land/stationd/api"
	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/daemon"
	"github.com/the-lightning-land/stationd/event"
	"github.com/the-lightning-land/stationd/radio"
	"github.com/the-lightning-land/stationd/station"
	"github.com/the-lightning-land/stationd/stationdb"
	// Blank import to set up profiling HTTP handlers.
	_ "net/http/pprof"
)

var (
	// commit stores the current commit hash of this build. This should be set using -ldflags during compilation.
	Commit string
	// version stores the version string of this build. This should be set using -ldflags during compilation.
	Version string
	// date stores the date of this build. This should be set using -ldflags during compilation.
	Date string
)

// errConnectFailed makes stationd exit with a non-zero code after a
// connection attempt that ran out of retries.
var errConnectFailed = errors.New("could not connect to access point")

// releaser is implemented by drivers that can leave the link up when
// stationd exits.
type releaser interface {
	Release() error
}

// stationdMain is the true entry point for stationd. This is required since defers
// created in the top-level scope of a main method aren't executed if os.Exit() is called.
func stationdMain() error {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	// Load CLI configuration and defaults
	cfg, err := loadConfig()
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	} else if err != nil {
		return errors.Errorf("Failed parsing arguments: %v", err)
	}

	// Set logger into debug mode if called with --debug
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		log.Info("Setting debug mode.")
	}

	log.Debug("Loaded config.")

	// Print version of the daemon
	log.Infof("Version %s (commit %s)", Version, Commit)
	log.Infof("Built on %s", Date)

	// Stop here if only version was requested
	if cfg.ShowVersion {
		return nil
	}

	if cfg.Profiling.Listen != "" {
		go func() {
			log.Infof("Starting profiling server on %v", cfg.Profiling.Listen)
			// Redirect the root path
			http.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))
			// All other handlers are registered on DefaultServeMux through the import of pprof
			err := http.ListenAndServe(cfg.Profiling.Listen, nil)
			if err != nil {
				log.Errorf("Could not run profiler: %v", err)
			}
		}()
	}

	// station.db persistently stores the saved network and past attempts
	stationDB, err := stationdb.Open(cfg.DataDir)
	if err != nil {
		return errors.Errorf("Could not open station.db: %v", err)
	}

	log.Infof("Opened %v", stationDB.Path())

	defer func() {
		err := stationDB.Close()
		if err != nil {
			log.Errorf("Could not close station.db: %v", err)
		} else {
			log.Info("Closed station.db.")
		}
	}()

	// The event bus carries radio and ip events to all subsystems
	bus := event.NewBus(&event.Config{
		Logger: log.New().WithField("system", "event"),
	})

	err = bus.Start()
	if err != nil {
		return errors.Errorf("Could not start event bus: %v", err)
	}

	defer func() {
		err := bus.Stop()
		if err != nil {
			log.Errorf("Could not stop event bus: %v", err)
		} else {
			log.Info("Stopped event bus.")
		}
	}()

	// The radio driver
	var driver radio.Driver

	switch cfg.Radio {
	case "wpa":
		driver = radio.NewWpaDriver(&radio.WpaDriverConfig{
			Interface:    cfg.Wpa.Interface,
			AssocTimeout: cfg.Wpa.AssocTimeout,
			Logger:       log.New().WithField("system", "radio"),
		})

		log.Infof("Created wpa_supplicant radio on %v.", cfg.Wpa.Interface)
	case "mock":
		driver, err = radio.NewMockDriver(&radio.MockDriverConfig{
			Script:   cfg.Mock.Script,
			Networks: cfg.Mock.Networks,
			Logger:   log.New().WithField("system", "radio"),
		})
		if err != nil {
			return errors.Errorf("Could not create mock radio: %v", err)
		}

		log.Info("Created a mock radio.")
	default:
		return errors.Errorf("Unknown radio type %v", cfg.Radio)
	}

	// keep the link up after a successful one-shot connect
	keepLink := false

	defer func() {
		if r, ok := driver.(releaser); ok && keepLink {
			err := r.Release()
			if err != nil {
				log.Errorf("Could not release radio: %v", err)
			} else {
				log.Info("Released radio.")
			}
			return
		}

		err := driver.Stop()
		if err != nil {
			log.Errorf("Could not properly stop radio: %v", err)
		} else {
			log.Info("Stopped radio.")
		}
	}()

	reporter, err := connectivity.NewReporter(&connectivity.Config{
		Bus:    bus,
		Logger: log.New().WithField("system", "connectivity"),
	})
	if err != nil {
		return errors.Errorf("Could not create connectivity reporter: %v", err)
	}

	defer func() {
		err := reporter.Close()
		if err != nil {
			log.Errorf("Could not close connectivity reporter: %v", err)
		}
	}()

	coordinator := station.New(&station.Config{
		Bus:        bus,
		Driver:     driver,
		MaxRetries: cfg.stationMaxRetries(),
		Timeout:    cfg.Timeout,
		Logger:     log.New().WithField("system", "station"),
	})

	log.Info("Created connection coordinator.")

	daemonConfig := &daemon.Config{
		Coordinator: coordinator,
		DB:          stationDB,
		Reporter:    reporter,
		Listen:      cfg.Listen,
		Logger:      log.New().WithField("system", "daemon"),
	}

	if scanner, ok := driver.(radio.Scanner); ok {
		daemonConfig.Scanner = scanner
	}

	if cfg.Listen != "" {
		daemonConfig.Api = api.New(&api.Config{
			Log: log.New().WithField("system", "api"),
		})

		log.Info("Created API.")
	}

	// central controller for everything the station does
	d := daemon.NewDaemon(daemonConfig)

	log.Info("Created station daemon.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals correctly
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		log.Info(sig)
		log.Info("Received an interrupt, stopping station...")
		cancel()
		d.Shutdown()
	}()

	if cfg.Listen == "" {
		outcome, err := connectOnce(ctx, cfg, d, stationDB)
		if err != nil {
			return err
		}

		if outcome != station.Success {
			return errConnectFailed
		}

		keepLink = true

		return nil
	}

	// blocks until the daemon is shut down
	err = d.Run()
	if err != nil {
		return errors.Errorf("Failed running station daemon: %v", err)
	}

	// finish with no error
	return nil
}

// connectOnce joins the network given on the command line or, without
// one, the saved network.
func connectOnce(ctx context.Context, cfg *config, d *daemon.Daemon, db *stationdb.DB) (station.Outcome, error) {
	ssid, password, authMode := cfg.Ssid, cfg.Password, cfg.authMode

	if ssid == "" {
		conn, err := db.GetWifiConnection()
		if err != nil {
			return station.Failure, errors.Wrap(err, "could not get saved network")
		}

		if conn == nil {
			return station.Failure, errors.New("no --ssid given and no network saved")
		}

		log.Infof("Using saved network %v.", conn.Ssid)

		ssid, password, authMode = conn.Ssid, conn.Password, conn.AuthMode
	}

	outcome, err := d.ConnectToWifi(ctx, ssid, password, authMode)
	if err != nil {
		return station.Failure, errors.Wrap(err, "could not connect")
	}

	log.Infof("Connection to %v finished with %v", ssid, outcome)

	return outcome, nil
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := stationdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			log.WithError(err).Println("Failed running stationd.")
		}
		os.Exit(1)
	}
}
