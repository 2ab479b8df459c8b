package escore

import "github.com/crazyfrankie/escore/peer"

// Peer reports the connection's local and remote socket endpoints.
func (c *Conn) Peer() *peer.Peer {
	return &peer.Peer{
		Addr:      c.actor.RemoteAddr(),
		LocalAddr: c.actor.LocalAddr(),
	}
}
