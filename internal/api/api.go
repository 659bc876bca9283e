// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/arbiter/internal/config"
	"github.com/JaimeStill/arbiter/internal/infrastructure"
	"github.com/JaimeStill/arbiter/pkg/middleware"
	"github.com/JaimeStill/arbiter/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// It registers the reminder sweep with the lifecycle coordinator.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)

	domain, err := NewDomain(cfg, runtime)
	if err != nil {
		return nil, err
	}

	if err := domain.Reminder.Start(runtime.Lifecycle); err != nil {
		return nil, fmt.Errorf("reminder start failed: %w", err)
	}

	var verifier middleware.TokenVerifier
	if cfg.API.Auth.Enabled {
		verifier, err = middleware.NewOIDCVerifier(runtime.Lifecycle.Context(), &cfg.API.Auth)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime)

	maxBody := cfg.API.MaxBodySizeBytes()

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.RequestID())
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))
	m.Use(middleware.Auth(verifier, runtime.Logger))
	m.Use(func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, maxBody)
	})

	return m, nil
}
