package daemon

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/event"
	"github.com/the-lightning-land/stationd/radio"
	"github.com/the-lightning-land/stationd/station"
	"github.com/the-lightning-land/stationd/stationdb"
)

type fixture struct {
	bus      *event.Bus
	driver   *radio.MockDriver
	db       *stationdb.DB
	reporter *connectivity.BusReporter
	config   *Config
}

func newFixture(t *testing.T, script string, maxRetries int) *fixture {
	t.Helper()

	bus := event.NewBus(&event.Config{})
	require.NoError(t, bus.Start())
	t.Cleanup(func() {
		_ = bus.Stop()
	})

	driver, err := radio.NewMockDriver(&radio.MockDriverConfig{
		Script:   script,
		Networks: []string{"candy", "cafe"},
	})
	require.NoError(t, err)

	db, err := stationdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	reporter, err := connectivity.NewReporter(&connectivity.Config{Bus: bus})
	require.NoError(t, err)

	return &fixture{
		bus:      bus,
		driver:   driver,
		db:       db,
		reporter: reporter,
		config: &Config{
			Coordinator: station.New(&station.Config{
				Bus:        bus,
				Driver:     driver,
				MaxRetries: maxRetries,
			}),
			DB:       db,
			Reporter: reporter,
			Scanner:  driver,
		},
	}
}

func TestConnectToWifiSavesNetwork(t *testing.T) {
	f := newFixture(t, "d+", 10)
	d := NewDaemon(f.config)

	outcome, err := d.ConnectToWifi(context.Background(), "candy", "sweet-secret", radio.AuthWpa2Psk)
	require.NoError(t, err)
	require.Equal(t, station.Success, outcome)

	conn, err := f.db.GetWifiConnection()
	require.NoError(t, err)
	require.Equal(t, "candy", conn.Ssid)
	require.Equal(t, "sweet-secret", conn.Password)
	require.Equal(t, radio.AuthWpa2Psk, conn.AuthMode)

	attempts, err := d.Attempts(0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, station.Success, attempts[0].Outcome)
	require.Equal(t, 2, attempts[0].Connects)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, f.reporter.WaitForStateChange(ctx, connectivity.Offline))

	status, err := d.Status()
	require.NoError(t, err)
	require.Equal(t, connectivity.Online, status.State)
	require.Equal(t, "candy", status.Ssid)
	require.Equal(t, station.Success, status.LastAttempt.Outcome)
}

func TestConnectToWifiFailureKeepsSavedNetwork(t *testing.T) {
	f := newFixture(t, "ddd", 2)
	require.NoError(t, f.db.SetWifiConnection(&stationdb.WifiConnection{Ssid: "home", AuthMode: radio.AuthOpen}))

	d := NewDaemon(f.config)

	outcome, err := d.ConnectToWifi(context.Background(), "candy", "wrong", radio.AuthWpa2Psk)
	require.NoError(t, err)
	require.Equal(t, station.Failure, outcome)

	conn, err := f.db.GetWifiConnection()
	require.NoError(t, err)
	require.Equal(t, "home", conn.Ssid)

	attempts, err := d.Attempts(1)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, station.Failure, attempts[0].Outcome)
	require.Equal(t, "NO_AP_FOUND", attempts[0].Reason)
}

func TestConnectToWifiRejectsInvalidAuthMode(t *testing.T) {
	f := newFixture(t, "+", 10)
	d := NewDaemon(f.config)

	_, err := d.ConnectToWifi(context.Background(), "candy", "", radio.AuthMode(-1))
	require.ErrorIs(t, err, radio.ErrUnsupportedAuthMode)

	attempts, err := d.Attempts(0)
	require.NoError(t, err)
	require.Empty(t, attempts)
}

func TestConcurrentConnectsRecordOwnAttempt(t *testing.T) {
	ssids := []string{"candy", "cafe", "bakery", "library", "station", "harbor"}

	f := newFixture(t, strings.Repeat("+", len(ssids)), 10)
	d := NewDaemon(f.config)

	var wg sync.WaitGroup
	for _, ssid := range ssids {
		wg.Add(1)
		go func(ssid string) {
			defer wg.Done()

			outcome, err := d.ConnectToWifi(context.Background(), ssid, "sweet-secret", radio.AuthWpa2Psk)
			if err != nil || outcome != station.Success {
				t.Errorf("connect to %v: %v %v", ssid, outcome, err)
			}
		}(ssid)
	}
	wg.Wait()

	attempts, err := d.Attempts(0)
	require.NoError(t, err)
	require.Len(t, attempts, len(ssids))

	recorded := map[string]int{}
	for _, attempt := range attempts {
		recorded[attempt.Ssid]++
	}

	for _, ssid := range ssids {
		require.Equal(t, 1, recorded[ssid], ssid)
	}
}

func TestScanWifi(t *testing.T) {
	f := newFixture(t, "", 10)
	d := NewDaemon(f.config)

	aps, err := d.ScanWifi(context.Background())
	require.NoError(t, err)
	require.Len(t, aps, 2)
	require.Equal(t, "candy", aps[0].Ssid)

	f.config.Scanner = nil
	d = NewDaemon(f.config)

	_, err = d.ScanWifi(context.Background())
	require.ErrorIs(t, err, ErrScanUnsupported)
}

type fakeApi struct {
	mtx    sync.Mutex
	daemon *Daemon
	served chan net.Listener
}

func (a *fakeApi) SetDaemon(d *Daemon) {
	a.mtx.Lock()
	a.daemon = d
	a.mtx.Unlock()
}

func (a *fakeApi) Serve(l net.Listener) error {
	a.served <- l
	_, err := l.Accept()
	return err
}

func TestRunJoinsSavedNetwork(t *testing.T) {
	f := newFixture(t, "+", 10)
	require.NoError(t, f.db.SetWifiConnection(&stationdb.WifiConnection{
		Ssid:     "candy",
		Password: "sweet-secret",
		AuthMode: radio.AuthWpa2Psk,
	}))

	api := &fakeApi{served: make(chan net.Listener, 1)}
	f.config.Api = api
	f.config.Listen = "127.0.0.1:0"

	d := NewDaemon(f.config)
	require.Equal(t, d, api.daemon)

	errs := make(chan error, 1)
	go func() {
		errs <- d.Run()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, f.reporter.WaitForStateChange(ctx, connectivity.Offline))

	select {
	case <-api.served:
	case <-ctx.Done():
		t.Fatal("api was not served")
	}

	d.Shutdown()
	d.Shutdown()

	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}

	require.Equal(t, 1, f.driver.Connects())
}

func TestRunWithoutSavedNetwork(t *testing.T) {
	f := newFixture(t, "+", 10)
	d := NewDaemon(f.config)

	errs := make(chan error, 1)
	go func() {
		errs <- d.Run()
	}()

	d.Shutdown()

	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}

	require.Equal(t, 0, f.driver.Connects())
}
