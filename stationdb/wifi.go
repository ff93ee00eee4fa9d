package stationdb

import (
	"github.com/the-lightning-land/stationd/radio"
)

// WifiConnection is the last network the station joined successfully.
type WifiConnection struct {
	Ssid     string         `json:"ssid"`
	Password string         `json:"password"`
	AuthMode radio.AuthMode `json:"authMode"`
}

// GetWifiConnection returns the saved network or nil.
func (db *DB) GetWifiConnection() (*WifiConnection, error) {
	conn := &WifiConnection{}

	found, err := db.getJSON(settingsBucket, wifiConnectionKey, conn)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return conn, nil
}

// SetWifiConnection saves the network, nil clears it.
func (db *DB) SetWifiConnection(conn *WifiConnection) error {
	return db.setJSON(settingsBucket, wifiConnectionKey, conn)
}
