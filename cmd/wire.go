package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	tomlconfig "github.com/bnema/planqk-cli/internal/adapters/config/toml"
	statusadapter "github.com/bnema/planqk-cli/internal/adapters/render/status"
	"github.com/bnema/planqk-cli/internal/adapters/tokenfile"
	"github.com/bnema/planqk-cli/internal/application"
	"github.com/bnema/planqk-cli/internal/connection"
	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/bnema/planqk-cli/internal/execution"
	"github.com/bnema/planqk-cli/internal/logger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type app struct {
	configStore    *tomlconfig.Store
	config         tomlconfig.Config
	service        *application.Service
	logger         zerolog.Logger
	httpClient     *http.Client
	jobsRenderer   func([]domain.Document, statusadapter.RenderOptions) (string, error)
	limitsRenderer func(domain.UsageLimits) (string, error)
	gateway        bool
	now            func() time.Time
}

// wire runs once flags are parsed so the logger and config path follow them.
func (a *app) wire(cmd *cobra.Command, flags *globalFlags) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg := viper.New()
	if flags.configPath != "" {
		cfg.Set(tomlconfig.KeyConfigPath, flags.configPath)
	}

	configStore, err := tomlconfig.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("wire config store: %w", err)
	}

	config, err := configStore.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cmd.ErrOrStderr(), flags.verbose)
	httpClient := &http.Client{}

	var assets fs.FS
	if config.LoginAssetsDir != "" {
		assets = os.DirFS(config.LoginAssetsDir)
	}

	a.configStore = configStore
	a.config = config
	a.logger = log
	a.httpClient = httpClient
	a.gateway = flags.gateway
	a.jobsRenderer = statusadapter.RenderJobs
	a.limitsRenderer = statusadapter.RenderLimits
	a.now = time.Now
	a.service = application.NewService(tokenfile.NewStore(), application.Config{
		TokenFile: config.TokenFile,
		Native: connection.Options{
			BaseURL:         config.APIURL,
			HTTPClient:      httpClient,
			RequestTimeout:  30 * time.Second,
			RefreshInterval: config.RefreshInterval,
			Logger:          log,
		},
		Login: connection.LoginOptions{
			ListenAddr: config.LoginListen,
			Assets:     assets,
		},
		Gateway: connection.GatewayOptions{
			HTTPClient: httpClient,
			Logger:     log,
		},
	})

	return nil
}

// jobClient opens a session for one command. The returned func closes it.
func (a *app) jobClient(cmd *cobra.Command, progress execution.ProgressFunc) (*execution.Client, func(), error) {
	session, err := a.service.Connect(cmd.Context(), application.ConnectCommand{Gateway: a.gateway})
	if err != nil {
		return nil, nil, err
	}

	client := &execution.Client{
		Conn:       session,
		HTTPClient: a.httpClient,
		Logger:     a.logger,
		Progress:   progress,
	}
	return client, func() { application.Shutdown(session) }, nil
}
