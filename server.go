package oauth

import (
	"fmt"
	"log/slog"

	"github.com/keyper-oauth/keyper/security"
	"github.com/keyper-oauth/keyper/server"
	"github.com/keyper-oauth/keyper/storage"
)

// Server is the authorization decision core served by Handler
type Server = server.Server

// NewServer creates an authorization server from the composed configuration.
// Auditing and instrumentation are wired when enabled in config.
func NewServer(clients storage.ClientRegistry, grants storage.GrantStore, config *Config) (*Server, error) {
	if config == nil {
		config = &Config{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv, err := server.New(clients, grants, config.serverConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	if config.Security.EnableAuditLogging {
		srv.SetAuditor(security.NewAuditor(logger, true))
	}
	if config.Instrumentation != nil {
		srv.SetInstrumentation(config.Instrumentation)
	}

	return srv, nil
}
