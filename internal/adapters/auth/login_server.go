package auth

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/rs/zerolog"
)

const (
	maxLoginRequestBytes = 64 << 10
	shutdownTimeout      = 5 * time.Second
)

//go:embed assets
var embeddedAssets embed.FS

// DefaultAssets is the login page served when no asset directory is configured.
func DefaultAssets() fs.FS {
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// SignInFunc forwards browser credentials to the remote sign-in endpoint.
type SignInFunc func(ctx context.Context, email string, password string) (domain.Credential, error)

// LoginServer is a single-use loopback server capturing one interactive login.
type LoginServer struct {
	assets     fs.FS
	signIn     SignInFunc
	logger     zerolog.Logger
	listener   net.Listener
	server     *http.Server
	resultCh   chan loginResult
	resultOnce sync.Once
	closeOnce  sync.Once
}

type loginResult struct {
	credential domain.Credential
	err        error
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func StartLoginServer(listenAddr string, assets fs.FS, signIn SignInFunc, logger zerolog.Logger) (*LoginServer, error) {
	if signIn == nil {
		return nil, errors.New("sign-in function is required")
	}
	if assets == nil {
		assets = DefaultAssets()
	}
	if listenAddr == "" {
		listenAddr = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen login server: %w", err)
	}

	s := &LoginServer{
		assets:   assets,
		signIn:   signIn,
		logger:   logger,
		listener: listener,
		resultCh: make(chan loginResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /", s.handleAsset)

	s.server = &http.Server{Handler: mux}

	go func() {
		if serveErr := s.server.Serve(s.listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.trySendResult(loginResult{err: serveErr})
		}
	}()

	return s, nil
}

func (s *LoginServer) URL() string {
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return fmt.Sprintf("http://127.0.0.1:%d/", tcpAddr.Port)
	}
	return "http://" + s.listener.Addr().String() + "/"
}

// Wait blocks until a login succeeds or ctx is done, then shuts the server down.
// Failed sign-in attempts keep the server running so the browser can retry.
func (s *LoginServer) Wait(ctx context.Context) (domain.Credential, error) {
	defer func() { _ = s.Close() }()

	select {
	case result := <-s.resultCh:
		return result.credential, result.err
	case <-ctx.Done():
		return domain.Credential{}, ctx.Err()
	}
}

func (s *LoginServer) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr = s.server.Shutdown(ctx); closeErr != nil {
			closeErr = s.server.Close()
		}
	})
	return closeErr
}

func (s *LoginServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxLoginRequestBytes)).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid login request")
		return
	}

	credential, err := s.signIn(r.Context(), req.Email, req.Password)
	if err != nil {
		status, message := loginFailure(err)
		s.logger.Warn().Int("status", status).Str("email", req.Email).Msg("login attempt failed")
		writeMessage(w, status, message)
		return
	}

	writeMessage(w, http.StatusOK, "Login successful. You can close this window.")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	s.trySendResult(loginResult{credential: credential})
}

func (s *LoginServer) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}
	if info, err := fs.Stat(s.assets, name); err == nil && info.IsDir() {
		name = path.Join(name, "index.html")
	}

	data, err := fs.ReadFile(s.assets, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *LoginServer) trySendResult(result loginResult) {
	s.resultOnce.Do(func() {
		s.resultCh <- result
	})
}

func loginFailure(err error) (int, string) {
	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) {
		message := remoteErr.Message
		if message == "" {
			message = remoteErr.Error()
		}
		return remoteErr.StatusCode, message
	}
	if errors.Is(err, domain.ErrInvalidArgument) {
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusBadGateway, err.Error()
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(messageResponse{Message: message})
}
