package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/the-lightning-land/stationd/radio"
	"github.com/the-lightning-land/stationd/station"
)

const (
	defaultRadio        = "wpa"
	defaultWpaInterface = "wlan0"
	defaultDataDirName  = ".stationd"
)

type wpaConfig struct {
	Interface    string        `long:"interface" description:"The wireless interface managed by wpa_supplicant"`
	AssocTimeout time.Duration `long:"assoctimeout" description:"Report a disconnect when a single association takes longer than this"`
}

type mockConfig struct {
	Script   string   `long:"script" description:"Reactions of the mock radio to consecutive connect commands, d = disconnect, + = got ip, . = silence"`
	Networks []string `long:"network" description:"Network returned by a scan of the mock radio, may be repeated"`
}

type profilingConfig struct {
	Listen string `long:"listen" description:"Serve pprof on this address"`
}

type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	Debug       bool   `long:"debug" description:"Start in debug mode"`
	DataDir     string `long:"datadir" description:"The directory to store station.db in"`
	Listen      string `long:"listen" description:"Serve the api on this address and keep running after connecting"`

	Ssid       string        `long:"ssid" description:"The network to join, defaults to the saved network"`
	Password   string        `long:"password" description:"The passphrase of the network"`
	Auth       string        `long:"auth" description:"The weakest accepted auth mode, e.g. open, wpa2-psk or wpa3-psk"`
	MaxRetries int           `long:"maxretries" description:"Reconnects after the first attempt before giving up, 0 gives up on the first disconnect"`
	Timeout    time.Duration `long:"timeout" description:"Give up waiting for the outcome after this long, 0 waits forever"`

	Radio     string          `long:"radio" description:"The radio driver" choice:"wpa" choice:"mock"`
	Wpa       wpaConfig       `group:"wpa" namespace:"wpa"`
	Mock      mockConfig      `group:"mock" namespace:"mock"`
	Profiling profilingConfig `group:"profiling" namespace:"profiling"`

	// authMode is parsed from Auth
	authMode radio.AuthMode
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirName
	}

	return filepath.Join(home, defaultDataDirName)
}

func defaultConfig() config {
	return config{
		DataDir:    defaultDataDir(),
		Auth:       radio.AuthWpa2Psk.String(),
		MaxRetries: station.DefaultMaxRetries,
		Radio:      defaultRadio,
		Wpa: wpaConfig{
			Interface: defaultWpaInterface,
		},
	}
}

// loadConfig parses the command line on top of the defaults.
func loadConfig() (*config, error) {
	return parseConfig(os.Args[1:])
}

func parseConfig(args []string) (*config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(&cfg, flags.Default)

	_, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	if cfg.MaxRetries < 0 {
		return nil, errors.Errorf("maxretries must not be negative, got %d", cfg.MaxRetries)
	}

	if cfg.Timeout < 0 {
		return nil, errors.Errorf("timeout must not be negative, got %v", cfg.Timeout)
	}

	cfg.authMode, err = radio.ParseAuthMode(cfg.Auth)
	if err != nil {
		return nil, errors.Wrap(err, "invalid auth")
	}

	if _, err := radio.ParseScript(cfg.Mock.Script); err != nil {
		return nil, errors.Wrap(err, "invalid mock script")
	}

	return &cfg, nil
}

// stationMaxRetries maps the flag onto station.Config, where zero selects the
// default.
func (c *config) stationMaxRetries() int {
	if c.MaxRetries == 0 {
		return station.NoRetries
	}

	return c.MaxRetries
}
