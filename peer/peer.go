package peer

import (
	"fmt"
	"net"
	"strings"
)

// Peer contains the information of the peer for an RPC: its address and
// the local address of the connection. It carries no authentication
// information.
type Peer struct {
	// Addr is the peer address.
	Addr net.Addr
	// LocalAddr is the local address.
	LocalAddr net.Addr
	// AuthInfo is the authentication information of the transport.
	// It is nil if there is no transport security being used.
	//AuthInfo credentials.AuthInfo
}

// String implements fmt.Stringer, printing both addresses.
func (p *Peer) String() string {
	if p == nil {
		return "Peer<nil>"
	}
	sb := &strings.Builder{}
	sb.WriteString("Peer{")
	if p.Addr != nil {
		fmt.Fprintf(sb, "Addr: '%s', ", p.Addr.String())
	} else {
		fmt.Fprintf(sb, "Addr: <nil>, ")
	}
	if p.LocalAddr != nil {
		fmt.Fprintf(sb, "LocalAddr: '%s', ", p.LocalAddr.String())
	} else {
		fmt.Fprintf(sb, "LocalAddr: <nil>, ")
	}
	//if p.AuthInfo != nil {
	//	fmt.Fprintf(sb, "AuthInfo: '%s'", p.AuthInfo.AuthType())
	//} else {
	//	fmt.Fprintf(sb, "AuthInfo: <nil>")
	//}
	sb.WriteString("}")

	return sb.String()
}
