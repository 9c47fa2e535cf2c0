package main

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nickyhof/orpheusplus"
	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/db"
	log "github.com/sirupsen/logrus"
)

// Server exposes versioned tables over TCP. Each connection works in the
// workspace of its identity; statements are executed one at a time.
type Server struct {
	listener   net.Listener
	metrics    *http.Server
	instance   *orpheusplus.Instance
	identity   core.Identity
	authConfig *AuthConfig
	tlsEnabled bool

	mu      sync.Mutex
	engines map[string]*db.Engine
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewServer creates a server where every connection uses identity.
func NewServer(instance *orpheusplus.Instance, identity core.Identity) *Server {
	return &Server{
		instance: instance,
		identity: identity,
		engines:  make(map[string]*db.Engine),
		done:     make(chan struct{}),
	}
}

// NewServerWithAuth creates a server where connections authenticate with
// AUTH JWT before running statements.
func NewServerWithAuth(instance *orpheusplus.Instance, identity core.Identity, authConfig *AuthConfig) *Server {
	s := NewServer(instance, identity)
	s.authConfig = authConfig
	return s
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.serve(listener)
	return nil
}

// StartTLS is Start with TLS using the given certificate and key files.
func (s *Server) StartTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	listener, err := tls.Listen("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.tlsEnabled = true
	s.serve(listener)
	return nil
}

func (s *Server) serve(listener net.Listener) {
	s.listener = listener
	log.WithFields(log.Fields{"addr": listener.Addr().String(), "tls": s.tlsEnabled, "auth": s.authRequired()}).Info("server listening")
	go s.acceptLoop()
}

// StartMetrics serves /metrics on addr.
func (s *Server) StartMetrics(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	s.metrics = &http.Server{Handler: metricsHandler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.metrics.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	log.WithField("addr", listener.Addr().String()).Info("metrics listening")
	return nil
}

// Stop closes the listeners and waits for open connections to finish.
func (s *Server) Stop() error {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.metrics != nil {
		s.metrics.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) TLSEnabled() bool {
	return s.tlsEnabled
}

func (s *Server) authRequired() bool {
	return s.authConfig != nil && s.authConfig.Enabled
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				log.WithError(err).Warn("accept failed")
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	connectionsTotal.Inc()
	activeConnections.Inc()
	defer activeConnections.Dec()

	logger := log.WithField("remote", conn.RemoteAddr().String())
	logger.Debug("client connected")

	state := &ConnectionState{}
	if !s.authRequired() {
		state.identity = &s.identity
	}
	reader := bufio.NewReader(conn)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				logger.WithError(err).Warn("read failed")
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			s.write(conn, logger, Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}
		if req.Query == "" {
			continue
		}
		if lower := strings.ToLower(req.Query); lower == "quit" || lower == "exit" {
			logger.Debug("client disconnected")
			return
		}

		var response Response
		switch {
		case strings.HasPrefix(strings.ToUpper(req.Query), "AUTH "):
			response = s.handleAuth(req.Query, state)
			if response.Success {
				logger = logger.WithField("user", state.identity.Name)
			}
		case state.identity == nil:
			response = Response{Success: false, Error: "authentication required: send AUTH JWT <token>"}
		case state.Expired(time.Now()):
			response = Response{Success: false, Error: "authentication required: token expired"}
		default:
			response = s.executeQuery(*state.identity, req.Query)
		}

		if !s.write(conn, logger, response) {
			return
		}
	}
}

func (s *Server) write(conn net.Conn, logger *log.Entry, response Response) bool {
	data, err := EncodeResponse(response)
	if err != nil {
		logger.WithError(err).Error("failed to encode response")
		return true
	}
	if _, err := conn.Write(data); err != nil {
		logger.WithError(err).Warn("write failed")
		return false
	}
	return true
}

// engine returns the engine of an identity's workspace. Callers hold mu.
func (s *Server) engine(identity core.Identity) *db.Engine {
	if e, ok := s.engines[identity.Name]; ok {
		return e
	}
	e := s.instance.Engine(identity)
	s.engines[identity.Name] = e
	return e
}

func (s *Server) executeQuery(identity core.Identity, query string) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.engine(identity).Execute(query)
	if err != nil {
		requestsTotal.WithLabelValues("error", "failed").Inc()
		log.WithFields(log.Fields{"user": identity.Name}).WithError(err).Debug("statement failed")
		return Response{Success: false, Error: err.Error()}
	}

	switch r := result.(type) {
	case db.QueryResult:
		requestsTotal.WithLabelValues("query", "ok").Inc()
		data, _ := json.Marshal(QueryResponse{
			Columns:     r.Columns,
			Data:        r.Data,
			RecordsRead: r.RecordsRead,
			TimeMs:      r.ExecutionTimeSec * 1000,
		})
		return Response{Success: true, Type: "query", Result: data}

	case db.CommitResult:
		requestsTotal.WithLabelValues("commit", "ok").Inc()
		data, _ := json.Marshal(CommitResponse{
			Table:          r.Table,
			Action:         r.Action,
			Version:        int64(r.Version),
			RecordsWritten: r.RecordsWritten,
			RecordsDeleted: r.RecordsDeleted,
			RowsAffected:   r.RowsAffected,
			TimeMs:         r.ExecutionTimeSec * 1000,
		})
		return Response{Success: true, Type: "commit", Result: data}
	}
	return Response{Success: true, Type: "unknown"}
}
