// Package listener receives syslog-style telemetry over UDP datagrams and
// TCP streams on one shared bind address. A failed bind disables that
// transport only; the process keeps running with whatever bound.
package listener

import (
	"context"
	"log/slog"
	"net"
	"sync"
)

// Ingest is called once per complete message line, with the peer address.
type Ingest func(line, remoteAddr string)

// Config holds the shared bind point and the per-message size cap.
type Config struct {
	Addr            string
	MaxMessageBytes int
}

// Server owns both transports. Construct with Start, stop with Close.
type Server struct {
	udp      net.PacketConn
	tcp      net.Listener
	ingest   Ingest
	maxBytes int

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// Start binds both transports and begins receiving. Bind failures are
// logged once and permanently disable that transport; Start itself never
// fails. The returned Server is closed via Close or when ctx is cancelled.
func Start(ctx context.Context, cfg Config, ingest Ingest) *Server {
	s := &Server{
		ingest:   ingest,
		maxBytes: cfg.MaxMessageBytes,
		conns:    make(map[net.Conn]struct{}),
	}

	udp, err := net.ListenPacket("udp", cfg.Addr)
	if err != nil {
		slog.Error("datagram listener disabled", "addr", cfg.Addr, "error", err)
	} else {
		s.udp = udp
		s.wg.Add(1)
		go s.readDatagrams()
		slog.Info("datagram listener started", "addr", cfg.Addr)
	}

	tcp, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		slog.Error("stream listener disabled", "addr", cfg.Addr, "error", err)
	} else {
		s.tcp = tcp
		s.wg.Add(1)
		go s.acceptStreams()
		slog.Info("stream listener started", "addr", cfg.Addr)
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s
}

// UDPAddr returns the bound datagram address, or nil when that transport
// is disabled.
func (s *Server) UDPAddr() net.Addr {
	if s.udp == nil {
		return nil
	}
	return s.udp.LocalAddr()
}

// TCPAddr returns the bound stream address, or nil when that transport is
// disabled.
func (s *Server) TCPAddr() net.Addr {
	if s.tcp == nil {
		return nil
	}
	return s.tcp.Addr()
}

// Close stops both transports and waits for in-flight reads to finish.
func (s *Server) Close() {
	if s.udp != nil {
		s.udp.Close()
	}
	if s.tcp != nil {
		s.tcp.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) track(c net.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
