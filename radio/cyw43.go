//go:build rp2040 || rp2350

package radio

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/soypat/cyw43439"
	"github.com/soypat/seqs/eth/dhcp"
	"github.com/soypat/seqs/stacks"
	"github.com/the-lightning-land/stationd/event"
)

// check Cyw43Driver compliance to its interface during compile time
var _ Driver = (*Cyw43Driver)(nil)

const (
	mtu          = cyw43439.MTU
	dhcpAttempts = 16
)

type Cyw43DriverConfig struct {
	// DHCP requested hostname
	Hostname string
	// Number of UDP and TCP ports to open on the stack. One more UDP port is
	// opened for the DHCP client.
	UDPPorts uint16
	TCPPorts uint16
	Logger   Logger
}

// Cyw43Driver drives the CYW43439 chip of the Raspberry Pi Pico W boards.
// Addresses are acquired with DHCP on the seqs network stack.
type Cyw43Driver struct {
	log      Logger
	hostname string
	udpPorts uint16
	tcpPorts uint16

	mtx     sync.Mutex
	bus     *event.Bus
	dev     *cyw43439.Device
	stack   *stacks.PortStack
	config  *Config
	started bool
	joins   joinLatch
}

func NewCyw43Driver(config *Cyw43DriverConfig) *Cyw43Driver {
	driver := &Cyw43Driver{
		hostname: config.Hostname,
		udpPorts: config.UDPPorts + 1,
		tcpPorts: config.TCPPorts,
	}

	if config.Logger != nil {
		driver.log = config.Logger
	} else {
		driver.log = noopLogger{}
	}

	return driver
}

func (d *Cyw43Driver) Init(bus *event.Bus) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.dev != nil {
		return nil
	}

	dev := cyw43439.NewPicoWDevice()

	start := time.Now()
	err := dev.Init(cyw43439.DefaultWifiConfig())
	if err != nil {
		return errors.Errorf("could not initialize cyw43439: %v", err)
	}

	d.log.Infof("Initialized cyw43439 in %v", time.Since(start))

	d.dev = dev
	d.bus = bus

	return nil
}

func (d *Cyw43Driver) SetMode(mode Mode) error {
	if mode != ModeStation {
		return ErrUnsupportedMode
	}

	return nil
}

// SetConfig accepts open and WPA2 networks, the only ones the chip
// firmware joins for us.
func (d *Cyw43Driver) SetConfig(config *Config) error {
	switch config.Threshold {
	case AuthOpen, AuthWpa2Psk:
	default:
		return ErrUnsupportedAuthMode
	}

	c := *config

	d.mtx.Lock()
	d.config = &c
	d.mtx.Unlock()

	return nil
}

func (d *Cyw43Driver) Start() error {
	d.mtx.Lock()
	bus := d.bus
	d.started = true
	d.mtx.Unlock()

	if bus == nil {
		return ErrNotInitialized
	}

	return bus.Post(context.Background(), event.WifiEvent, event.StaStart, nil)
}

// Connect joins in the background, the handler calling it must not block.
func (d *Cyw43Driver) Connect() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.dev == nil || !d.started || d.config == nil {
		return ErrNotInitialized
	}

	if !d.joins.begin() {
		return nil
	}

	go d.join(d.bus, d.dev, *d.config)

	return nil
}

func (d *Cyw43Driver) Stop() error {
	d.mtx.Lock()
	bus := d.bus
	wasStarted := d.started
	d.started = false
	d.mtx.Unlock()

	if bus == nil || !wasStarted {
		return nil
	}

	err := bus.Post(context.Background(), event.WifiEvent, event.StaStop, nil)
	if err != nil && err != event.ErrBusStopped {
		return err
	}

	return nil
}

// Stack returns the network stack once an address was acquired.
func (d *Cyw43Driver) Stack() *stacks.PortStack {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.stack
}

func (d *Cyw43Driver) join(bus *event.Bus, dev *cyw43439.Device, config Config) {
	ctx := context.Background()

	disconnected := func(reason string) {
		d.joins.finish(func() {
			_ = bus.Post(ctx, event.WifiEvent, event.StaDisconnected, &event.Disconnected{
				Ssid:   config.Ssid,
				Reason: reason,
			})
		})
	}

	if config.Password == "" {
		d.log.Infof("Joining open network %v", config.Ssid)
	} else {
		d.log.Infof("Joining WPA secure network %v", config.Ssid)
	}

	err := dev.JoinWPA2(config.Ssid, config.Password)
	if err != nil {
		d.log.Warnf("Joining %v failed: %v", config.Ssid, err)
		disconnected(err.Error())
		return
	}

	_ = bus.Post(ctx, event.WifiEvent, event.StaConnected, nil)

	stack, err := d.portStack(dev)
	if err != nil {
		d.log.Errorf("Could not set up network stack: %v", err)
		disconnected("STACK_SETUP")
		return
	}

	client := stacks.NewDHCPClient(stack, dhcp.DefaultClientPort)
	err = client.BeginRequest(stacks.DHCPRequestConfig{
		Xid:      uint32(time.Now().Nanosecond()),
		Hostname: d.hostname,
	})
	if err != nil {
		d.log.Errorf("Could not begin DHCP request: %v", err)
		disconnected("DHCP_REQUEST")
		return
	}

	for i := 0; client.State() != dhcp.StateBound; i++ {
		if i >= dhcpAttempts {
			disconnected("DHCP_TIMEOUT")
			return
		}

		d.log.Debugf("DHCP ongoing...")
		time.Sleep(time.Second / 2)
	}

	ip := client.Offer()
	stack.SetAddr(ip)

	d.log.Infof("DHCP complete, got %v", ip)

	d.joins.finish(func() {
		_ = bus.Post(ctx, event.IPEvent, event.StaGotIP, &event.GotIP{
			Interface: "cyw43",
			IP:        net.IP(ip.AsSlice()),
			Mask:      net.CIDRMask(int(client.CIDRBits()), 32),
			Gateway:   net.IP(client.Gateway().AsSlice()),
		})
	})
}

// portStack creates the network stack on first use and starts handling
// packets for it.
func (d *Cyw43Driver) portStack(dev *cyw43439.Device) (*stacks.PortStack, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.stack != nil {
		return d.stack, nil
	}

	mac, err := dev.HardwareAddr6()
	if err != nil {
		return nil, errors.Errorf("could not read hardware address: %v", err)
	}

	stack := stacks.NewPortStack(stacks.PortStackConfig{
		MAC:             mac,
		MaxOpenPortsUDP: int(d.udpPorts),
		MaxOpenPortsTCP: int(d.tcpPorts),
		MTU:             mtu,
	})

	dev.RecvEthHandle(stack.RecvEth)

	go d.nicLoop(dev, stack)

	d.stack = stack

	return stack, nil
}

func (d *Cyw43Driver) nicLoop(dev *cyw43439.Device, stack *stacks.PortStack) {
	const (
		queueSize                = 3
		maxRetriesBeforeDropping = 3
	)

	var queue [queueSize][mtu]byte
	var lenBuf [queueSize]int
	var retries [queueSize]int

	markSent := func(i int) {
		lenBuf[i] = 0
		retries[i] = 0
	}

	for {
		stallRx := true

		gotPacket, err := dev.PollOne()
		if err != nil {
			d.log.Debugf("Poll error: %v", err)
		}
		if gotPacket {
			stallRx = false
		}

		for i := range queue {
			if retries[i] != 0 {
				// queued for retransmission
				continue
			}

			lenBuf[i], err = stack.HandleEth(queue[i][:])
			if err != nil {
				d.log.Debugf("Stack error: %v", err)
				lenBuf[i] = 0
				continue
			}
			if lenBuf[i] == 0 {
				break
			}
		}

		if lenBuf == [queueSize]int{} {
			if stallRx {
				time.Sleep(51 * time.Millisecond)
			}
			continue
		}

		for i := range queue {
			n := lenBuf[i]
			if n <= 0 {
				continue
			}

			err := dev.SendEth(queue[i][:n])
			if err != nil {
				retries[i]++
				if retries[i] > maxRetriesBeforeDropping {
					markSent(i)
					d.log.Debugf("Dropped outgoing packet: %v", err)
				}
			} else {
				markSent(i)
			}
		}
	}
}
