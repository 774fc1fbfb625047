package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bnema/planqk-cli/internal/connection"
	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/bnema/planqk-cli/internal/ports"
)

// Session is an open connection. Callers must Close it.
type Session interface {
	ports.Connection
	Close()
	Refresher() *connection.Refresher
}

// Shutdown closes s and waits for its refresher to exit.
func Shutdown(s Session) {
	s.Close()
	<-s.Refresher().Done()
}

type Config struct {
	// TokenFile is where the native session is persisted between runs.
	TokenFile string
	Native    connection.Options
	Login     connection.LoginOptions
	Gateway   connection.GatewayOptions
}

type Service struct {
	store ports.TokenStore
	cfg   Config
}

func NewService(store ports.TokenStore, cfg Config) *Service {
	return &Service{store: store, cfg: cfg}
}

func (s *Service) TokenFile() string {
	return s.cfg.TokenFile
}

// Login opens a native session and persists it to the token file.
func (s *Service) Login(ctx context.Context, cmd LoginCommand) (*connection.Connection, error) {
	if err := s.requireTokenFile(); err != nil {
		return nil, err
	}

	var (
		conn *connection.Connection
		err  error
	)
	switch cmd.Method() {
	case LoginTokenFile:
		conn, err = connection.OpenFromTokenFile(ctx, s.cfg.Native, s.store, cmd.TokenFile)
	case LoginPassword:
		if strings.TrimSpace(cmd.Email) == "" || cmd.Password == "" {
			return nil, fmt.Errorf("%w: both email and password are required", domain.ErrInvalidArgument)
		}
		conn, err = connection.OpenWithPassword(ctx, s.cfg.Native, cmd.Email, cmd.Password)
	default:
		conn, err = connection.OpenInteractive(ctx, s.cfg.Native, s.cfg.Login)
	}
	if err != nil {
		return nil, fmt.Errorf("login (%s): %w", cmd.Method(), err)
	}

	if err := conn.SaveTokenFile(ctx, s.store, s.cfg.TokenFile); err != nil {
		Shutdown(conn)
		return nil, fmt.Errorf("save session: %w", err)
	}

	return conn, nil
}

// Connect restores a session. The native path rewrites the token file since
// opening it rotates the refresh token.
func (s *Service) Connect(ctx context.Context, cmd ConnectCommand) (Session, error) {
	if cmd.Gateway {
		conn, err := connection.OpenGateway(ctx, s.cfg.Gateway)
		if err != nil {
			return nil, fmt.Errorf("connect to gateway: %w", err)
		}
		return conn, nil
	}

	return s.connectNative(ctx)
}

func (s *Service) connectNative(ctx context.Context) (*connection.Connection, error) {
	if err := s.requireTokenFile(); err != nil {
		return nil, err
	}

	conn, err := connection.OpenFromTokenFile(ctx, s.cfg.Native, s.store, s.cfg.TokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: not logged in, run `pqk login` first", domain.ErrAuthentication)
		}
		return nil, fmt.Errorf("restore session: %w", err)
	}

	if err := conn.SaveTokenFile(ctx, s.store, s.cfg.TokenFile); err != nil {
		Shutdown(conn)
		return nil, fmt.Errorf("save session: %w", err)
	}

	return conn, nil
}

func (s *Service) Limits(ctx context.Context) (domain.UsageLimits, error) {
	conn, err := s.connectNative(ctx)
	if err != nil {
		return domain.UsageLimits{}, err
	}
	defer Shutdown(conn)

	return conn.Limits(), nil
}

// Logout forgets the saved session. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.requireTokenFile(); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, s.cfg.TokenFile); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Service) requireTokenFile() error {
	if strings.TrimSpace(s.cfg.TokenFile) == "" {
		return fmt.Errorf("%w: token file path is not configured", domain.ErrConfiguration)
	}
	return nil
}
