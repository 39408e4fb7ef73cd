/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/clipdeck/internal/api"
	"github.com/friendsincode/clipdeck/internal/auth"
	"github.com/friendsincode/clipdeck/internal/config"
	"github.com/friendsincode/clipdeck/internal/db"
	"github.com/friendsincode/clipdeck/internal/editor"
	"github.com/friendsincode/clipdeck/internal/engine"
	"github.com/friendsincode/clipdeck/internal/eventbus"
	"github.com/friendsincode/clipdeck/internal/events"
	"github.com/friendsincode/clipdeck/internal/export"
	"github.com/friendsincode/clipdeck/internal/handoff"
	"github.com/friendsincode/clipdeck/internal/history"
	"github.com/friendsincode/clipdeck/internal/notify"
	"github.com/friendsincode/clipdeck/internal/probe"
	"github.com/friendsincode/clipdeck/internal/storage"
	"github.com/friendsincode/clipdeck/internal/telemetry"
	"github.com/friendsincode/clipdeck/internal/waveform"
)

const (
	clockTick        = 100 * time.Millisecond
	janitorInterval  = time.Hour
	waveformCacheTTL = 30 * 24 * time.Hour
	historyRetention = 90 * 24 * time.Hour
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db       *gorm.DB
	cache    *waveform.Cache
	history  *history.Store
	loader   *engine.Loader
	prober   *probe.FFprobe
	sessions *editor.Manager
	bus      *events.Bus
	api      *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("clipdeck-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Uploads and exports of long files legitimately outlive the timeout.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" || r.Method == http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data: blob:; media-src 'self' blob:; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work directory %s: %w", s.cfg.WorkDir, err)
	}

	prober := probe.NewFFprobe(probe.Config{Binary: s.cfg.FFprobeBin, WorkDir: s.cfg.WorkDir}, s.logger)
	s.prober = prober
	if !prober.Available() {
		s.logger.Warn().Str("binary", s.cfg.FFprobeBin).Msg("ffprobe not found, uploads will be unreadable")
	}

	decoder := &waveform.FFmpegDecoder{Binary: s.cfg.FFmpegBin, WorkDir: s.cfg.WorkDir}
	s.cache = waveform.NewCache(database)
	analyzer := waveform.NewCachedAnalyzer(waveform.NewAnalyzer(decoder, s.cfg.WaveformBuckets, s.logger), s.cache, s.logger)

	s.loader = engine.NewLoader(func(ctx context.Context) (engine.Engine, error) {
		eng, err := engine.NewFFmpeg(engine.FFmpegConfig{Binary: s.cfg.FFmpegBin, WorkDir: s.cfg.WorkDir}, s.logger)
		if err != nil {
			return nil, err
		}
		telemetry.EngineInitialized.Set(1)
		return eng, nil
	})
	s.DeferClose(func() error {
		telemetry.EngineInitialized.Set(0)
		return s.loader.Close()
	})
	pipeline := export.NewPipeline(s.loader, export.Options{BitrateKbps: s.cfg.ReencodeBitrateKbps}, s.logger)

	channel, err := s.newHandoffChannel()
	if err != nil {
		return err
	}

	store, err := s.newObjectStore()
	if err != nil {
		return err
	}

	s.history = history.NewStore(database)

	var publisher events.Publisher = s.bus
	var source api.EventSource = s.bus
	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		if s.cfg.NATSSubject != "" {
			natsCfg.Prefix = s.cfg.NATSSubject
		}
		nb := eventbus.NewNATSBus(natsCfg, s.bus, s.logger)
		s.DeferClose(nb.Close)
		publisher, source = nb, nb
	}

	authenticator := auth.Authenticator(auth.AllowAll{})
	authMiddleware := auth.Local("local")
	if s.cfg.JWTSigningKey != "" {
		authenticator = auth.ContextAuthenticator{}
		authMiddleware = auth.Middleware([]byte(s.cfg.JWTSigningKey))
	}

	s.sessions = editor.NewManager(editor.Config{
		Prober:       prober,
		ProbeTimeout: s.cfg.ProbeTimeout,
		Analyzer:     analyzer,
		Exporter:     pipeline,
		Handoff:      channel,
		Store:        store,
		History:      s.history,
		Auth:         authenticator,
		Notifier:     notify.NewBusNotifier(publisher, s.logger),
		Events:       publisher,
		ClockTick:    clockTick,
	}, s.logger)
	s.DeferClose(func() error {
		s.sessions.CloseAll()
		return nil
	})

	s.api = api.New(s.sessions, api.Options{
		Handoff:        channel,
		History:        s.history,
		Events:         source,
		Auth:           authMiddleware,
		MaxUploadBytes: s.cfg.MaxUploadSizeBytes(),
	}, s.logger)

	return nil
}

func (s *Server) newHandoffChannel() (handoff.Channel, error) {
	switch s.cfg.HandoffBackend {
	case config.HandoffRedis:
		ch, err := handoff.NewRedisChannel(context.Background(), handoff.RedisConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
			TTL:      s.cfg.HandoffTTL,
		}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("hand-off channel: %w", err)
		}
		s.DeferClose(ch.Close)
		s.logger.Info().Str("addr", s.cfg.RedisAddr).Msg("hand-off channel using redis")
		return ch, nil
	default:
		return handoff.NewMemoryChannel(s.cfg.HandoffTTL), nil
	}
}

func (s *Server) newObjectStore() (storage.ObjectStore, error) {
	if s.cfg.S3Bucket != "" {
		store, err := storage.NewS3Store(context.Background(), storage.S3Config{
			Bucket:          s.cfg.S3Bucket,
			Region:          s.cfg.S3Region,
			Endpoint:        s.cfg.S3Endpoint,
			AccessKeyID:     s.cfg.S3AccessKeyID,
			SecretAccessKey: s.cfg.S3SecretAccessKey,
			UsePathStyle:    s.cfg.S3UsePathStyle,
		}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("artifact storage: %w", err)
		}
		return store, nil
	}
	if s.cfg.ArtifactRoot == "" {
		return nil, nil
	}
	store := storage.NewFilesystemStore(s.cfg.ArtifactRoot, s.logger)
	if err := store.CheckAccess(context.Background()); err != nil {
		return nil, fmt.Errorf("artifact storage: %w", err)
	}
	return store, nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		response := `{"status":"ok"`
		if s.prober != nil {
			response += fmt.Sprintf(`,"ffprobe":%t`, s.prober.Available())
		}
		if s.loader != nil && s.loader.Loaded() {
			response += `,"engine":true`
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	if s.cfg.MetricsBind == "" {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.api.Routes(s.router)
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer returns the dedicated metrics listener, or nil when metrics
// are served on the main router.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	if s.db == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Database metrics updater
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.prune(ctx, time.Now())
			}
		}
	}()
}

// prune drops cached envelopes and export records past their retention.
func (s *Server) prune(ctx context.Context, now time.Time) {
	if s.cache != nil {
		n, err := s.cache.Prune(ctx, now.Add(-waveformCacheTTL))
		if err != nil {
			s.logger.Warn().Err(err).Msg("waveform cache prune failed")
		} else if n > 0 {
			s.logger.Debug().Int64("rows", n).Msg("pruned waveform cache")
		}
	}
	if s.history != nil {
		n, err := s.history.Prune(ctx, now.Add(-historyRetention))
		if err != nil {
			s.logger.Warn().Err(err).Msg("export history prune failed")
		} else if n > 0 {
			s.logger.Debug().Int64("rows", n).Msg("pruned export history")
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}
