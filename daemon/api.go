package daemon

import "net"

type Api interface {
	SetDaemon(d *Daemon)
	Serve(l net.Listener) error
}
