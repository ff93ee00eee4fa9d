package radio

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/stationd/event"
)

func TestAuthModeNames(t *testing.T) {
	for mode := AuthOpen; mode < authModeMax; mode++ {
		require.True(t, mode.Valid())

		parsed, err := ParseAuthMode(mode.String())
		require.NoError(t, err)
		require.Equal(t, mode, parsed)
	}

	require.False(t, authModeMax.Valid())
	require.False(t, AuthMode(-1).Valid())
	require.Equal(t, "INVALID AUTH MODE", authModeMax.String())
}

func TestParseAuthModeLenient(t *testing.T) {
	mode, err := ParseAuthMode(" WPA2_PSK ")
	require.NoError(t, err)
	require.Equal(t, AuthWpa2Psk, mode)

	_, err = ParseAuthMode("wpa4")
	require.Error(t, err)
}

func TestAuthModeJSON(t *testing.T) {
	payload, err := json.Marshal(struct {
		Auth AuthMode `json:"auth"`
	}{AuthWpa3Psk})
	require.NoError(t, err)
	require.JSONEq(t, `{"auth":"wpa3-psk"}`, string(payload))

	var decoded struct {
		Auth AuthMode `json:"auth"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"auth":"owe"}`), &decoded))
	require.Equal(t, AuthOWE, decoded.Auth)

	require.Error(t, json.Unmarshal([]byte(`{"auth":"nope"}`), &decoded))
}

func TestParseScript(t *testing.T) {
	steps, err := ParseScript("dd.+")
	require.NoError(t, err)
	require.Equal(t, []Step{StepDisconnect, StepDisconnect, StepSilent, StepGotIP}, steps)

	_, err = ParseScript("dx")
	require.Error(t, err)
}

func collect(t *testing.T, bus *event.Bus) <-chan *event.Event {
	t.Helper()

	events := make(chan *event.Event, 16)
	for _, base := range []event.Base{event.WifiEvent, event.IPEvent} {
		_, err := bus.Register(base, event.AnyID, func(ev *event.Event) {
			events <- ev
		})
		require.NoError(t, err)
	}

	return events
}

func next(t *testing.T, events <-chan *event.Event) *event.Event {
	t.Helper()

	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event posted")
		return nil
	}
}

func TestMockDriverFollowsScript(t *testing.T) {
	bus := event.NewBus(&event.Config{})
	require.NoError(t, bus.Start())
	defer bus.Stop()

	events := collect(t, bus)

	driver, err := NewMockDriver(&MockDriverConfig{Script: "d+"})
	require.NoError(t, err)

	require.ErrorIs(t, driver.Start(), ErrNotInitialized)

	require.NoError(t, driver.Init(bus))
	require.ErrorIs(t, driver.SetMode(ModeAccessPoint), ErrUnsupportedMode)
	require.NoError(t, driver.SetMode(ModeStation))
	require.NoError(t, driver.SetConfig(&Config{Ssid: "candy", Threshold: AuthWpa2Psk}))
	require.NoError(t, driver.Start())

	require.Equal(t, event.StaStart, next(t, events).ID)

	require.NoError(t, driver.Connect())
	ev := next(t, events)
	require.Equal(t, event.StaDisconnected, ev.ID)
	require.Equal(t, "candy", ev.Data.(*event.Disconnected).Ssid)

	require.NoError(t, driver.Connect())
	require.Equal(t, event.StaConnected, next(t, events).ID)
	ev = next(t, events)
	require.Equal(t, event.IPEvent, ev.Base)
	require.Equal(t, event.StaGotIP, ev.ID)
	require.Equal(t, "192.168.4.2", ev.Data.(*event.GotIP).IP.String())

	// script exhausted, fallback applies
	require.NoError(t, driver.Connect())
	require.Equal(t, event.StaDisconnected, next(t, events).ID)

	require.Equal(t, 3, driver.Connects())
	require.Equal(t, 1, driver.Starts())

	require.NoError(t, driver.Stop())
	require.Equal(t, event.StaStop, next(t, events).ID)
}

func TestMockDriverInitError(t *testing.T) {
	initErr := ErrNotInitialized
	driver, err := NewMockDriver(&MockDriverConfig{InitErr: initErr})
	require.NoError(t, err)

	require.Equal(t, initErr, driver.Init(event.NewBus(&event.Config{})))
}

func TestMockDriverScan(t *testing.T) {
	driver, err := NewMockDriver(&MockDriverConfig{Networks: []string{"candy", "lollipop"}})
	require.NoError(t, err)

	aps, err := driver.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, aps, 2)
	require.Equal(t, "lollipop", aps[1].Ssid)
	require.Equal(t, "02:00:00:00:00:01", aps[1].Bssid)
}

func TestNetworkArgs(t *testing.T) {
	pmf := Pmf{Capable: true}

	args, err := networkArgs(&Config{Ssid: "cafe", Threshold: AuthOpen, Pmf: pmf})
	require.NoError(t, err)
	require.Equal(t, "NONE", args["key_mgmt"])
	require.Equal(t, uint32(1), args["ieee80211w"])
	require.NotContains(t, args, "psk")

	args, err = networkArgs(&Config{Ssid: "home", Password: "secret123", Threshold: AuthWpa2Psk, Pmf: pmf})
	require.NoError(t, err)
	require.Equal(t, "home", args["ssid"])
	require.Equal(t, "WPA-PSK", args["key_mgmt"])
	require.Equal(t, "RSN", args["proto"])
	require.Equal(t, "secret123", args["psk"])

	args, err = networkArgs(&Config{Ssid: "home", Password: "secret123", Threshold: AuthWpa3Psk, Pmf: pmf})
	require.NoError(t, err)
	require.Equal(t, "SAE", args["key_mgmt"])
	require.Equal(t, "secret123", args["sae_password"])
	require.Equal(t, uint32(2), args["ieee80211w"])

	args, err = networkArgs(&Config{Ssid: "old", Password: "abcde", Threshold: AuthWEP})
	require.NoError(t, err)
	require.Equal(t, "abcde", args["wep_key0"])
	require.Equal(t, uint32(0), args["ieee80211w"])

	args, err = networkArgs(&Config{Ssid: "mixed", Password: "secret123", Threshold: AuthWpa2Wpa3Psk})
	require.NoError(t, err)
	require.Equal(t, "WPA-PSK SAE", args["key_mgmt"])
	require.Equal(t, uint32(1), args["ieee80211w"])
}

func TestNetworkArgsRejects(t *testing.T) {
	_, err := networkArgs(&Config{Threshold: AuthOpen})
	require.Error(t, err)

	_, err = networkArgs(&Config{Ssid: "corp", Threshold: AuthWpa2Enterprise})
	require.ErrorIs(t, err, ErrUnsupportedAuthMode)

	_, err = networkArgs(&Config{Ssid: "wapi", Threshold: AuthWapiPsk})
	require.ErrorIs(t, err, ErrUnsupportedAuthMode)
}
