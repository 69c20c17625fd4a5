package listener

import (
	"log/slog"
	"net"
	"strings"
)

// readDatagrams delivers one message per packet. Oversized datagrams are
// truncated by the read buffer, matching the transport's size cap.
func (s *Server) readDatagrams() {
	defer s.wg.Done()
	buf := make([]byte, s.maxBytes)
	for {
		n, addr, err := s.udp.ReadFrom(buf)
		if err != nil {
			if isClosed(err) {
				return
			}
			slog.Warn("datagram read error", "error", err)
			continue
		}
		line := strings.TrimRight(string(buf[:n]), "\r\n")
		if line == "" {
			continue
		}
		s.ingest(line, addr.String())
	}
}

// isClosed reports whether err is the listener-shutdown error.
func isClosed(err error) bool {
	return err == net.ErrClosed || strings.Contains(err.Error(), "use of closed network connection")
}
