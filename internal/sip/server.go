package sip

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/web3auth/internal/observability/metrics"
	"github.com/pendergraft/web3auth/internal/verify/domain"
)

// Verifier checks digest credentials against the contract.
type Verifier interface {
	Verify(ctx context.Context, creds domain.Credentials) (domain.Outcome, error)
}

// registration holds a registered contact for one identity.
type registration struct {
	ContactURI string
	ExpiresAt  time.Time
}

// Server is a SIP registrar listening on UDP and TCP. Every REGISTER
// is authenticated through the Verifier; the server itself holds no
// credential material, only nonces and contact bindings.
type Server struct {
	verifier Verifier
	realm    string
	logger   *slog.Logger
	nonces   *nonceStore

	regMutex      sync.RWMutex
	registrations map[string]registration
}

// Option configures a Server.
type Option func(*Server)

// WithNonceTTL overrides the challenge nonce lifetime.
func WithNonceTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.nonces = newNonceStore(ttl)
		}
	}
}

// NewServer creates a registrar for the given realm.
func NewServer(verifier Verifier, realm string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		verifier:      verifier,
		realm:         realm,
		logger:        logger,
		nonces:        newNonceStore(DefaultNonceTTL),
		registrations: make(map[string]registration),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the UDP and TCP listeners on addr and blocks until ctx is
// canceled or a listener fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pc, err := net.ListenPacket("udp", addr)
		if err != nil {
			return fmt.Errorf("listening on UDP %s: %w", addr, err)
		}
		defer pc.Close()
		s.logger.Info("SIP listener started", "proto", "udp", "addr", pc.LocalAddr().String())

		go func() {
			<-gCtx.Done()
			pc.Close()
		}()

		buf := make([]byte, 4096)
		for {
			n, clientAddr, err := pc.ReadFrom(buf)
			if err != nil {
				if gCtx.Err() != nil {
					return nil
				}
				s.logger.Error("UDP read failed", "error", err)
				continue
			}

			message := string(buf[:n])
			go func() {
				if resp := s.serve(gCtx, message); resp != "" {
					if _, err := pc.WriteTo([]byte(resp), clientAddr); err != nil {
						s.logger.Error("UDP write failed", "addr", clientAddr.String(), "error", err)
					}
				}
			}()
		}
	})

	g.Go(func() error {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listening on TCP %s: %w", addr, err)
		}
		defer listener.Close()
		s.logger.Info("SIP listener started", "proto", "tcp", "addr", listener.Addr().String())

		go func() {
			<-gCtx.Done()
			listener.Close()
		}()

		for {
			conn, err := listener.Accept()
			if err != nil {
				if gCtx.Err() != nil {
					return nil
				}
				s.logger.Error("TCP accept failed", "error", err)
				continue
			}
			go s.handleConnection(gCtx, conn)
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				s.nonces.Sweep()
			}
		}
	})

	return g.Wait()
}

// handleConnection reads SIP messages off a TCP connection in a loop.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var headers strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					s.logger.Error("TCP read failed", "addr", conn.RemoteAddr().String(), "error", err)
				}
				return
			}
			headers.WriteString(line)
			if line == "\r\n" {
				break
			}
		}
		headerStr := headers.String()

		contentLength := parseContentLength(headerStr)
		body := make([]byte, contentLength)
		if contentLength > 0 {
			if _, err := io.ReadFull(reader, body); err != nil {
				s.logger.Error("TCP body read failed", "addr", conn.RemoteAddr().String(), "error", err)
				return
			}
		}

		if resp := s.serve(ctx, headerStr+string(body)); resp != "" {
			if _, err := conn.Write([]byte(resp)); err != nil {
				s.logger.Error("TCP write failed", "addr", conn.RemoteAddr().String(), "error", err)
				return
			}
		}
	}
}

// parseContentLength extracts the Content-Length value from raw headers.
func parseContentLength(headerStr string) int {
	for _, line := range strings.Split(headerStr, "\r\n") {
		lowerLine := strings.ToLower(line)
		if strings.HasPrefix(lowerLine, "content-length:") || strings.HasPrefix(lowerLine, "l:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				if length, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
					return length
				}
			}
		}
	}
	return 0
}

// serve parses one raw message and returns the wire-form response, or
// "" when the input is not a request we answer.
func (s *Server) serve(ctx context.Context, raw string) string {
	req, err := ParseRequest(raw)
	if err != nil {
		s.logger.Debug("dropping unparseable message", "error", err)
		return ""
	}

	// Responses start with the protocol token; a registrar has no
	// client transactions to hand them to.
	if strings.HasPrefix(req.Method, "SIP/") {
		return ""
	}

	resp := s.handleRequest(ctx, req)
	metrics.RecordSIPRequest(req.Method, strconv.Itoa(resp.StatusCode))
	return resp.String()
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "REGISTER":
		return s.handleRegister(ctx, req)
	case "OPTIONS":
		return BuildResponse(200, "OK", req, map[string]string{"Allow": "REGISTER, OPTIONS"})
	default:
		return BuildResponse(405, "Method Not Allowed", req, map[string]string{"Allow": "REGISTER, OPTIONS"})
	}
}

func (s *Server) handleRegister(ctx context.Context, req *Request) *Response {
	if len(req.Authorization) == 0 {
		return s.challenge(req)
	}

	auth := req.Authorization
	username, okU := auth["username"]
	nonce, okN := auth["nonce"]
	uri, okR := auth["uri"]
	response, okResp := auth["response"]

	if !okU || !okN || !okR || !okResp {
		return BuildResponse(400, "Bad Request", req, map[string]string{"Warning": "Missing digest parameters"})
	}

	if !s.nonces.Consume(nonce) {
		s.logger.Info("stale or replayed nonce", "username", username)
		return s.challenge(req)
	}

	realm := auth["realm"]
	if realm == "" {
		realm = s.realm
	}

	outcome, err := s.verifier.Verify(ctx, domain.Credentials{
		Username: username,
		Realm:    realm,
		URI:      uri,
		Nonce:    nonce,
		Response: response,
		Method:   req.Method,
	})
	if err != nil {
		return BuildResponse(400, "Bad Request", req, map[string]string{"Warning": err.Error()})
	}

	switch {
	case outcome.Accepted():
		s.logger.Info("registration authenticated", "username", username)
		s.updateRegistration(username, req)
		return s.createOKResponse(req)
	case outcome.Verdict == domain.Mismatch:
		s.logger.Info("registration rejected", "username", username)
		return BuildResponse(403, "Forbidden", req, nil)
	case outcome.NotFound:
		s.logger.Info("unknown identity", "username", username)
		return BuildResponse(404, "Not Found", req, nil)
	default:
		s.logger.Warn("verification indeterminate", "username", username, "reason", outcome.Reason)
		return BuildResponse(504, "Server Time-out", req, nil)
	}
}

// challenge answers with 401 and a fresh single-use nonce.
func (s *Server) challenge(req *Request) *Response {
	nonce := s.nonces.Issue()
	metrics.RecordSIPChallenge()
	authValue := fmt.Sprintf(`Digest realm="%s", nonce="%s", algorithm=MD5, qop="auth"`, s.realm, nonce)
	return BuildResponse(401, "Unauthorized", req, map[string]string{
		"Www-Authenticate": authValue,
	})
}

func (s *Server) createOKResponse(req *Request) *Response {
	headers := map[string]string{
		"Date": time.Now().UTC().Format(time.RFC1123),
	}
	if contact := req.GetHeader("Contact"); contact != "" {
		headers["Contact"] = fmt.Sprintf("%s;expires=%d", contact, req.Expires())
	}
	return BuildResponse(200, "OK", req, headers)
}

// updateRegistration records or clears the contact binding for username.
func (s *Server) updateRegistration(username string, req *Request) {
	contact := req.GetHeader("Contact")
	expires := req.Expires()

	s.regMutex.Lock()
	defer s.regMutex.Unlock()

	if expires <= 0 {
		delete(s.registrations, username)
		return
	}
	s.registrations[username] = registration{
		ContactURI: contact,
		ExpiresAt:  time.Now().Add(time.Duration(expires) * time.Second),
	}
}

// Registration returns the active contact binding for username, if any.
func (s *Server) Registration(username string) (string, bool) {
	s.regMutex.RLock()
	defer s.regMutex.RUnlock()

	reg, ok := s.registrations[username]
	if !ok || time.Now().After(reg.ExpiresAt) {
		return "", false
	}
	return reg.ContactURI, true
}
