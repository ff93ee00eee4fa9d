package radio

import (
	"strings"

	"github.com/go-errors/errors"
)

// AuthMode is the weakest authentication scheme the station accepts when
// joining an access point.
type AuthMode int

const (
	AuthOpen AuthMode = iota
	AuthWEP
	AuthWpaPsk
	AuthWpa2Psk
	AuthWpaWpa2Psk
	AuthWpa2Enterprise
	AuthWpa3Psk
	AuthWpa2Wpa3Psk
	AuthWapiPsk
	AuthOWE
	authModeMax
)

var authModeNames = [...]string{
	AuthOpen:           "open",
	AuthWEP:            "wep",
	AuthWpaPsk:         "wpa-psk",
	AuthWpa2Psk:        "wpa2-psk",
	AuthWpaWpa2Psk:     "wpa-wpa2-psk",
	AuthWpa2Enterprise: "wpa2-enterprise",
	AuthWpa3Psk:        "wpa3-psk",
	AuthWpa2Wpa3Psk:    "wpa2-wpa3-psk",
	AuthWapiPsk:        "wapi-psk",
	AuthOWE:            "owe",
}

// Valid reports whether a is one of the known modes.
func (a AuthMode) Valid() bool {
	return a >= AuthOpen && a < authModeMax
}

func (a AuthMode) String() string {
	if !a.Valid() {
		return "INVALID AUTH MODE"
	}

	return authModeNames[a]
}

// ParseAuthMode accepts the names returned by String, case insensitive.
// Underscores are treated like dashes.
func ParseAuthMode(s string) (AuthMode, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")

	for mode, n := range authModeNames {
		if n == name {
			return AuthMode(mode), nil
		}
	}

	return 0, errors.Errorf("unknown auth mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a AuthMode) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, errors.Errorf("invalid auth mode %d", int(a))
	}

	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AuthMode) UnmarshalText(text []byte) error {
	mode, err := ParseAuthMode(string(text))
	if err != nil {
		return err
	}

	*a = mode

	return nil
}
