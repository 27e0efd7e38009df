package port

import (
	"net"
	"strconv"
)

// Scanner checks whether host ports are free by trying to bind them.
//
// Binding asks the operating system directly, so it works without
// parsing /proc or shelling out to tools that may need elevated
// permissions.
type Scanner struct {
	// listen and listenPacket are replaceable in tests.
	listen       func(network, address string) (net.Listener, error)
	listenPacket func(network, address string) (net.PacketConn, error)
}

// NewScanner returns a Scanner that binds real sockets.
func NewScanner() *Scanner {
	return &Scanner{listen: net.Listen, listenPacket: net.ListenPacket}
}

// IsPortAvailable reports whether port can be bound for protocol on hostIP.
//
// An empty hostIP checks all interfaces, which is where the daemon
// publishes ports by default. The second result is false when the protocol
// cannot be checked this way (sctp), in which case availability is
// unknown rather than negative.
func (s *Scanner) IsPortAvailable(hostIP string, port int, protocol string) (available, checked bool) {
	addr := net.JoinHostPort(hostIP, strconv.Itoa(port))

	switch protocol {
	case "", "tcp":
		listener, err := s.listen("tcp", addr)
		if err != nil {
			return false, true
		}
		_ = listener.Close()
		return true, true

	case "udp":
		conn, err := s.listenPacket("udp", addr)
		if err != nil {
			return false, true
		}
		_ = conn.Close()
		return true, true

	default:
		return false, false
	}
}
