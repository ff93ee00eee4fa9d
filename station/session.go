package station

import (
	"sync"

	"github.com/the-lightning-land/stationd/event"
	"github.com/the-lightning-land/stationd/radio"
)

// session is the state of a single connection attempt. Its handlers are
// invoked by the bus dispatcher, the waiting caller only reads outcome.
type session struct {
	log        Logger
	driver     radio.Driver
	maxRetries int

	mtx         sync.Mutex
	retries     int
	connects    int
	disconnects int
	gotIP       *event.GotIP
	lastDisconn *event.Disconnected

	outcome chan Outcome
}

func newSession(driver radio.Driver, maxRetries int, log Logger) *session {
	return &session{
		log:        log,
		driver:     driver,
		maxRetries: maxRetries,
		outcome:    make(chan Outcome, 1),
	}
}

// signal delivers the outcome. Only the first one counts.
func (s *session) signal(outcome Outcome) {
	select {
	case s.outcome <- outcome:
	default:
	}
}

func (s *session) handleWifiEvent(ev *event.Event) {
	switch ev.ID {
	case event.StaStart:
		s.log.Infof("Connecting to access point...")
		s.connect()

	case event.StaDisconnected:
		s.mtx.Lock()
		s.disconnects++
		if data, ok := ev.Data.(*event.Disconnected); ok {
			s.lastDisconn = data
		}
		s.mtx.Unlock()

		if !s.takeRetry() {
			s.log.Infof("Giving up after %d retries", s.maxRetries)
			s.signal(Failure)
			return
		}

		s.log.Infof("Reconnecting to access point...")
		s.connect()
	}
}

func (s *session) handleIPEvent(ev *event.Event) {
	if ev.ID != event.StaGotIP {
		return
	}

	gotIP, _ := ev.Data.(*event.GotIP)
	if gotIP != nil {
		s.log.Infof("STA IP: %v", gotIP.IP)
	}

	s.mtx.Lock()
	s.retries = 0
	s.gotIP = gotIP
	s.mtx.Unlock()

	s.signal(Success)
}

// takeRetry increments the retry counter unless the budget is spent.
func (s *session) takeRetry() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.retries >= s.maxRetries {
		return false
	}

	s.retries++

	return true
}

// connect issues a connect command. A command the driver rejects is
// treated like a disconnect, otherwise the attempt would never resolve.
func (s *session) connect() {
	for {
		s.mtx.Lock()
		s.connects++
		s.mtx.Unlock()

		err := s.driver.Connect()
		if err == nil {
			return
		}

		s.log.Warnf("Could not issue connect command: %v", err)

		if !s.takeRetry() {
			s.signal(Failure)
			return
		}
	}
}

func (s *session) stats() (retries, connects, disconnects int, gotIP *event.GotIP, lastDisconn *event.Disconnected) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.retries, s.connects, s.disconnects, s.gotIP, s.lastDisconn
}
