package event

import (
	"fmt"
	"net"
)

// Base identifies a family of events.
type Base string

const (
	WifiEvent Base = "WIFI_EVENT"
	IPEvent   Base = "IP_EVENT"
)

// ID identifies a single event within its Base.
type ID int32

// AnyID matches every event of a Base when registering a handler.
const AnyID ID = -1

// Wifi events
const (
	StaStart ID = iota
	StaStop
	StaConnected
	StaDisconnected
)

// IP events
const (
	StaGotIP ID = iota
	StaLostIP
)

// Event is a single notification travelling through the bus.
type Event struct {
	Base Base
	ID   ID
	Data interface{}
}

func (e *Event) String() string {
	return fmt.Sprintf("%v:%v", e.Base, e.Name())
}

// Name returns a readable name of the event id.
func (e *Event) Name() string {
	switch e.Base {
	case WifiEvent:
		switch e.ID {
		case StaStart:
			return "STA_START"
		case StaStop:
			return "STA_STOP"
		case StaConnected:
			return "STA_CONNECTED"
		case StaDisconnected:
			return "STA_DISCONNECTED"
		}
	case IPEvent:
		switch e.ID {
		case StaGotIP:
			return "STA_GOT_IP"
		case StaLostIP:
			return "STA_LOST_IP"
		}
	}

	return fmt.Sprintf("%d", e.ID)
}

// Disconnected is carried by StaDisconnected events
type Disconnected struct {
	Ssid   string
	Reason string
}

// GotIP is carried by StaGotIP events
type GotIP struct {
	Interface string
	IP        net.IP
	Mask      net.IPMask
	Gateway   net.IP
}
