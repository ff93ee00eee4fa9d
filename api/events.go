package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/the-lightning-land/stationd/connectivity"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type stationEvent struct {
	State connectivity.State `json:"state"`
	Time  time.Time          `json:"time"`
}

// handleGetStationEvents streams connectivity changes over a websocket,
// starting with the current state.
func (a *Api) handleGetStationEvents() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Errorf("Could not upgrade to websocket: %v", err)
			return
		}

		defer c.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// read pump
		go func() {
			defer cancel()

			c.SetReadLimit(512)
			c.SetReadDeadline(time.Now().Add(pongWait))
			c.SetPongHandler(func(string) error {
				c.SetReadDeadline(time.Now().Add(pongWait))
				return nil
			})

			for {
				_, _, err := c.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						a.log.Errorf("unexpected websocket closure: %v", err)
					}
					return
				}
			}
		}()

		states := make(chan connectivity.State)

		go func() {
			defer close(states)

			state := a.station.CurrentState()
			for {
				select {
				case states <- state:
				case <-ctx.Done():
					return
				}

				if !a.station.WaitForStateChange(ctx, state) {
					return
				}

				state = a.station.CurrentState()
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		// write pump
		for {
			select {
			case state, ok := <-states:
				if !ok {
					return
				}

				c.SetWriteDeadline(time.Now().Add(writeWait))

				err := c.WriteJSON(&stationEvent{
					State: state,
					Time:  time.Now(),
				})
				if err != nil {
					return
				}
			case <-ticker.C:
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-ctx.Done():
				c.SetWriteDeadline(time.Now().Add(writeWait))
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		}
	}
}
