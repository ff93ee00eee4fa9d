package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/daemon"
	"github.com/the-lightning-land/stationd/radio"
	"github.com/the-lightning-land/stationd/station"
	"github.com/the-lightning-land/stationd/stationdb"
)

type connectCall struct {
	ssid     string
	password string
	authMode radio.AuthMode
}

type fakeStation struct {
	mtx        sync.Mutex
	state      connectivity.State
	changed    chan struct{}
	outcome    station.Outcome
	connectErr error
	scanErr    error
	aps        []*radio.AccessPoint
	attempts   []*stationdb.Attempt
	limits     []int
	calls      []connectCall
}

func newFakeStation() *fakeStation {
	return &fakeStation{
		changed: make(chan struct{}),
	}
}

func (f *fakeStation) Status() (*daemon.Status, error) {
	return &daemon.Status{
		State: f.CurrentState(),
		Ssid:  "candy",
	}, nil
}

func (f *fakeStation) ConnectToWifi(ctx context.Context, ssid string, password string, authMode radio.AuthMode) (station.Outcome, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.calls = append(f.calls, connectCall{ssid, password, authMode})

	return f.outcome, f.connectErr
}

func (f *fakeStation) ScanWifi(ctx context.Context) ([]*radio.AccessPoint, error) {
	return f.aps, f.scanErr
}

func (f *fakeStation) Attempts(limit int) ([]*stationdb.Attempt, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.limits = append(f.limits, limit)

	return f.attempts, nil
}

func (f *fakeStation) CurrentState() connectivity.State {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.state
}

func (f *fakeStation) WaitForStateChange(ctx context.Context, from connectivity.State) bool {
	for {
		f.mtx.Lock()
		state, changed := f.state, f.changed
		f.mtx.Unlock()

		if state != from {
			return true
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return false
		}
	}
}

func (f *fakeStation) setState(state connectivity.State) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.state = state
	close(f.changed)
	f.changed = make(chan struct{})
}

func do(t *testing.T, a *Api, method string, target string, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	a.ServeHTTP(rec, req)

	res := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	return rec, res
}

func TestGetStation(t *testing.T) {
	s := newFakeStation()
	s.state = connectivity.Online
	a := New(&Config{Station: s})

	rec, res := do(t, a, http.MethodGet, "/api/v1/station", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "ONLINE", res["state"])
	require.Equal(t, "candy", res["ssid"])
}

func TestPostConnect(t *testing.T) {
	s := newFakeStation()
	s.outcome = station.Success
	a := New(&Config{Station: s})

	rec, res := do(t, a, http.MethodPost, "/api/v1/station/connect",
		`{"ssid":"candy","password":"sweet-secret","auth":"WPA2_PSK"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "SUCCESS", res["outcome"])

	require.Len(t, s.calls, 1)
	require.Equal(t, connectCall{"candy", "sweet-secret", radio.AuthWpa2Psk}, s.calls[0])
}

func TestPostConnectFailureOutcome(t *testing.T) {
	s := newFakeStation()
	s.outcome = station.Failure
	a := New(&Config{Station: s})

	rec, res := do(t, a, http.MethodPost, "/api/v1/station/connect", `{"ssid":"candy","auth":"open"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "FAILURE", res["outcome"])
}

func TestPostConnectBadRequests(t *testing.T) {
	s := newFakeStation()
	a := New(&Config{Station: s})

	for _, body := range []string{
		`{"ssid":"candy","auth":"wpa4"}`,
		`{"auth":"open"}`,
		`not json`,
	} {
		rec, res := do(t, a, http.MethodPost, "/api/v1/station/connect", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.NotEmpty(t, res["error"], body)
	}

	require.Empty(t, s.calls)
}

func TestPostConnectError(t *testing.T) {
	s := newFakeStation()
	s.connectErr = errors.New("radio on fire")
	a := New(&Config{Station: s})

	rec, res := do(t, a, http.MethodPost, "/api/v1/station/connect", `{"ssid":"candy","auth":"open"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "radio on fire", res["error"])
}

func TestGetNetworks(t *testing.T) {
	s := newFakeStation()
	s.aps = []*radio.AccessPoint{{Ssid: "candy", Bssid: "02:00:00:00:00:00"}}
	a := New(&Config{Station: s})

	rec, res := do(t, a, http.MethodGet, "/api/v1/networks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, res["networks"], 1)

	s.scanErr = daemon.ErrScanUnsupported

	rec, _ = do(t, a, http.MethodGet, "/api/v1/networks", "")
	require.Equal(t, http.StatusNotImplemented, rec.Code)

	s.scanErr = errors.New("busy")

	rec, _ = do(t, a, http.MethodGet, "/api/v1/networks", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetAttempts(t *testing.T) {
	s := newFakeStation()
	s.attempts = []*stationdb.Attempt{{Id: 2, Ssid: "candy", Outcome: station.Success}}
	a := New(&Config{Station: s})

	rec, res := do(t, a, http.MethodGet, "/api/v1/attempts?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, res["attempts"], 1)

	rec, _ = do(t, a, http.MethodGet, "/api/v1/attempts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int{5, defaultAttemptsLimit}, s.limits)

	rec, _ = do(t, a, http.MethodGet, "/api/v1/attempts?limit=many", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStationEvents(t *testing.T) {
	s := newFakeStation()
	a := New(&Config{Station: s})

	server := httptest.NewServer(a)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/station/events"

	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	c.SetReadDeadline(time.Now().Add(2 * time.Second))

	ev := map[string]interface{}{}
	require.NoError(t, c.ReadJSON(&ev))
	require.Equal(t, "OFFLINE", ev["state"])

	s.setState(connectivity.Online)

	ev = map[string]interface{}{}
	require.NoError(t, c.ReadJSON(&ev))
	require.Equal(t, "ONLINE", ev["state"])
}
