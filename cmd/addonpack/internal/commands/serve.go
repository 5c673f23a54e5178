package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/addonpack/internal/assets"
	httpmiddleware "github.com/wolfeidau/addonpack/internal/http"
	"github.com/wolfeidau/addonpack/internal/logger"
	"github.com/wolfeidau/addonpack/internal/watch"
)

// ServeCmd builds the add-ons in hosted mode and serves them for loading
// into a development copy of the host page.
type ServeCmd struct {
	BuildFlags `embed:""`

	Listen      string        `help:"HTTP server listen address" default:"127.0.0.1:8080" env:"ADDONPACK_LISTEN"`
	Watch       bool          `help:"rebuild when sources change" default:"true" negatable:"" env:"ADDONPACK_WATCH"`
	Debounce    time.Duration `help:"quiet period before a rebuild" default:"250ms" env:"ADDONPACK_DEBOUNCE"`
	CORSOrigins []string      `help:"allowed CORS origins" default:"*" env:"ADDONPACK_CORS_ORIGINS"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	if err := c.Validate(); err != nil {
		return err
	}

	log := logger.Setup(globals.Debug)
	defer startTelemetry(ctx, log, c.Telemetry, globals.Version)()

	if c.BasePath == "" && c.Extension == "" {
		c.BasePath = fmt.Sprintf("http://%s/addons/", c.Listen)
	}

	pipeline, err := assets.New(c.config())
	if err != nil {
		return fmt.Errorf("failed to load assets pipeline: %w", err)
	}

	if _, err := pipeline.Build(ctx); err != nil {
		if !c.Watch {
			return fmt.Errorf("failed to build add-ons: %w", err)
		}
		log.Error().Err(err).Msg("Initial build failed, waiting for changes")
	}

	if c.Watch {
		watcher, err := watch.New(watch.Config{
			Root:     pipeline.Resolve(c.Source),
			Debounce: c.Debounce,
			OnChange: func(ctx context.Context, changed []string) error {
				_, err := pipeline.Build(ctx)
				return err
			},
		})
		if err != nil {
			return fmt.Errorf("failed to watch sources: %w", err)
		}

		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Watcher stopped")
			}
		}()
	}

	srv := configureHTTPServer(c.Listen, c.handler(pipeline, log))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown HTTP server")
		}
	}()

	log.Info().
		Str("addr", c.Listen).
		Str("base_path", pipeline.Config().Namer.BasePath()).
		Bool("watch", c.Watch).
		Msg("Starting HTTP server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (c *ServeCmd) handler(pipeline *assets.Pipeline, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", pipeline.Handler())
	mux.HandleFunc("GET /addons.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, pipeline.ManifestPath())
	})
	mux.Handle("GET /addons/", http.StripPrefix("/addons/", http.FileServer(http.Dir(pipeline.OutputDir()))))

	return httpmiddleware.Chain(mux,
		httpmiddleware.ClientIPMiddleware(),
		logger.Requests(log),
		httpmiddleware.NoCache(),
		withCORS(c.CORSOrigins),
	)
}

// withCORS lets the host page, served from another origin, fetch the bundles.
func withCORS(allowedOrigins []string) httpmiddleware.Middleware {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})
	return middleware.Handler
}
