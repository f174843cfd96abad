// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kapy9250/cli-gateway/lib/audit"
	"github.com/kapy9250/cli-gateway/lib/clock"
	"github.com/kapy9250/cli-gateway/lib/codec"
	"github.com/kapy9250/cli-gateway/lib/config"
	"github.com/kapy9250/cli-gateway/lib/grant"
	"github.com/kapy9250/cli-gateway/lib/peercred"
	"github.com/kapy9250/cli-gateway/lib/policy"
	"github.com/kapy9250/cli-gateway/lib/sysexec"
	"github.com/kapy9250/cli-gateway/lib/totp"
)

// Deps are the collaborators the server dispatches into. All fields
// are required except Resolver, which defaults to the production
// peercred resolver.
type Deps struct {
	Clock      clock.Clock
	Resolver   *peercred.Resolver
	Engine     *policy.Engine
	Executor   *sysexec.Executor
	Grants     *grant.Manager
	Challenges *grant.ChallengeManager
	Enrollment *totp.Store
	Recorder   *audit.Recorder
	Version    string
}

// Server listens on the bridge socket and serves one request per
// connection.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	clock      clock.Clock
	resolver   *peercred.Resolver
	engine     *policy.Engine
	executor   *sysexec.Executor
	grants     *grant.Manager
	challenges *grant.ChallengeManager
	enrollment *totp.Store
	recorder   *audit.Recorder

	version   string
	startedAt time.Time

	wg sync.WaitGroup
}

// NewServer assembles a server. It does not touch the socket; Serve
// does.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	resolver := deps.Resolver
	if resolver == nil {
		resolver = peercred.NewResolver()
	}
	return &Server{
		cfg:        cfg,
		logger:     logger,
		clock:      deps.Clock,
		resolver:   resolver,
		engine:     deps.Engine,
		executor:   deps.Executor,
		grants:     deps.Grants,
		challenges: deps.Challenges,
		enrollment: deps.Enrollment,
		recorder:   deps.Recorder,
		version:    deps.Version,
		startedAt:  deps.Clock.Now(),
	}
}

// Serve binds the socket and accepts connections until the context is
// canceled, then drains in-flight requests and removes the socket.
//
// Socket setup fails closed: a pre-existing path that is not a socket
// is an error, never removed. A stale socket from a previous run is
// removed before binding.
func (s *Server) Serve(ctx context.Context) error {
	path := s.cfg.Socket.Path

	socketMode, err := config.ParseMode(s.cfg.Socket.Mode)
	if err != nil {
		return fmt.Errorf("bridge: socket mode: %w", err)
	}
	parentMode, err := config.ParseMode(s.cfg.Socket.ParentMode)
	if err != nil {
		return fmt.Errorf("bridge: socket parent mode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), parentMode); err != nil {
		return fmt.Errorf("bridge: creating socket directory: %w", err)
	}
	if info, err := os.Stat(path); err == nil {
		if info.Mode().Type() != fs.ModeSocket {
			return fmt.Errorf("bridge: %s exists and is not a socket, refusing to remove it", path)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("bridge: removing stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("bridge: listening on %s: %w", path, err)
	}

	if err := os.Chmod(path, socketMode); err != nil {
		listener.Close()
		return fmt.Errorf("bridge: setting socket mode: %w", err)
	}
	if s.cfg.Socket.OwnerUID != nil || s.cfg.Socket.OwnerGID != nil {
		uid, gid := -1, -1
		if s.cfg.Socket.OwnerUID != nil {
			uid = *s.cfg.Socket.OwnerUID
		}
		if s.cfg.Socket.OwnerGID != nil {
			gid = *s.cfg.Socket.OwnerGID
		}
		if err := os.Chown(path, uid, gid); err != nil {
			listener.Close()
			return fmt.Errorf("bridge: setting socket ownership: %w", err)
		}
	}

	s.logger.Info("bridge listening",
		slog.String("socket", path),
		slog.String("mode", s.cfg.Socket.Mode))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}

	s.wg.Wait()
	os.Remove(path)
	s.logger.Info("bridge stopped")
	return nil
}

// countingReader tracks how many bytes passed through, so an
// oversized request can be told apart from a malformed one after the
// decoder fails.
type countingReader struct {
	reader io.Reader
	read   int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.read += int64(n)
	return n, err
}

// handleConnection serves exactly one request. Every exit path writes
// a response if the connection is still writable; a panic in a
// handler is confined to its connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling request", slog.Any("panic", r))
			s.writeError(conn, ReasonInternal)
		}
	}()

	// The read deadline bounds the request arriving; handlers carry
	// their own execution timeouts, and the reply gets a fresh write
	// deadline. Wall clock, not the injected one: deadlines belong to
	// the kernel.
	conn.SetReadDeadline(time.Now().Add(s.cfg.RequestTimeout()))

	identity, err := s.resolver.Resolve(conn)
	if err != nil {
		s.logger.Warn("peer resolution failed", slog.String("error", err.Error()))
		s.writeError(conn, ReasonPeerResolution)
		return
	}

	maxBytes := int64(s.cfg.Limits.MaxRequestBytes)
	counting := &countingReader{reader: io.LimitReader(conn, maxBytes+1)}

	var raw codec.RawMessage
	if err := codec.NewDecoder(counting).Decode(&raw); err != nil {
		switch {
		case counting.read > maxBytes:
			s.writeError(conn, ReasonRequestTooLarge)
		case os.IsTimeout(err):
			s.writeError(conn, ReasonRequestTimeout)
		default:
			s.writeError(conn, ReasonDecodeFailed)
		}
		return
	}

	var envelope struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &envelope); err != nil || envelope.Action == "" {
		s.writeError(conn, ReasonDecodeFailed+": missing action")
		return
	}

	result, err := s.dispatch(ctx, identity, envelope.Action, raw)
	if err != nil {
		s.writeError(conn, reasonFor(err))
		return
	}
	s.writeSuccess(conn, result)
}

// writeTimeout bounds sending one response.
const writeTimeout = 10 * time.Second

func (s *Server) writeError(conn net.Conn, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{Error: reason}); err != nil {
		s.logger.Debug("writing error response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.logger.Error("encoding response payload", slog.String("error", err.Error()))
			s.writeError(conn, ReasonInternal)
			return
		}
		response.Data = data
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing response", slog.String("error", err.Error()))
	}
}
