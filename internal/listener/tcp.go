package listener

import (
	"io"
	"log/slog"
	"net"
	"strings"
)

// acceptStreams accepts connections until the listener is closed.
func (s *Server) acceptStreams() {
	defer s.wg.Done()
	for {
		conn, err := s.tcp.Accept()
		if err != nil {
			if isClosed(err) {
				return
			}
			slog.Warn("stream accept error", "error", err)
			continue
		}
		s.track(conn)
		s.wg.Add(1)
		go s.readStream(conn)
	}
}

// readStream demultiplexes newline-delimited messages from one connection.
// Each connection keeps its own buffer; a trailing partial line is retained
// until more bytes arrive. A line exceeding the size cap is truncated at
// the cap and the overflow discarded.
func (s *Server) readStream(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	pending := make([]byte, 0, s.maxBytes)
	overflowing := false
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				if !overflowing {
					s.deliver(pending, remote)
				}
				pending = pending[:0]
				overflowing = false
				continue
			}
			if len(pending) >= s.maxBytes {
				if !overflowing {
					s.deliver(pending, remote)
					overflowing = true
				}
				continue
			}
			pending = append(pending, b)
		}
		if err != nil {
			if err != io.EOF && !isClosed(err) {
				slog.Warn("stream read error", "remote", remote, "error", err)
			}
			// Orderly close or error: flush whatever remains and clean up.
			if !overflowing {
				s.deliver(pending, remote)
			}
			return
		}
	}
}

func (s *Server) deliver(line []byte, remote string) {
	msg := strings.TrimRight(string(line), "\r")
	if msg == "" {
		return
	}
	s.ingest(msg, remote)
}
