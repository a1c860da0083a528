// Package app wires configuration into a running planner service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/magickplan"
	"github.com/menta2k/magickplan/internal/config"
	"github.com/menta2k/magickplan/internal/queue"
	"github.com/menta2k/magickplan/internal/transport"
	"github.com/menta2k/magickplan/pkg/client"
	"github.com/menta2k/magickplan/pkg/detection"
	"github.com/menta2k/magickplan/pkg/llamacpp"
	"github.com/menta2k/magickplan/pkg/ollama"
	"github.com/menta2k/magickplan/pkg/processing"
)

// DefaultOllamaURL is used when the ollama backend has no url configured
const DefaultOllamaURL = "http://localhost:11434"

// NewProcessor builds the source processor from the planner and detection settings
func NewProcessor(cfg *config.Config) (*processing.Processor, error) {
	maxBytes, err := cfg.MaxSourceBytes()
	if err != nil {
		return nil, err
	}
	opts := processing.DefaultOptions()
	opts.ModelFormat = cfg.Detection.SendFormat
	opts.ModelMaxDim = cfg.Detection.SendSize
	opts.ModelQuality = cfg.Detection.SendQuality
	opts.MaxSourceBytes = maxBytes
	return processing.NewProcessorWithOptions(opts), nil
}

// NewVisionClient returns the client for a detection backend
func NewVisionClient(backend, url string) (client.VisionClient, error) {
	switch backend {
	case "ollama":
		if url == "" {
			url = DefaultOllamaURL
		}
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown detection backend %q", backend)
	}
}

// NewDetector builds the face detector described by cfg, or nil when the
// backend is "none". A non-nil rdb enables the result cache.
func NewDetector(cfg *config.Config, proc *processing.Processor, rdb *redis.Client, log logrus.FieldLogger) (detection.FaceDetector, error) {
	if cfg.Detection.Backend == "none" {
		return nil, nil
	}

	vc, err := NewVisionClient(cfg.Detection.Backend, cfg.Detection.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	var d detection.FaceDetector = detection.NewVisionDetector(vc, proc, cfg.Detection.Model)
	if rdb != nil {
		d = detection.NewCached(d, detection.NewRedisStore(rdb), cfg.Cache.TTL, log)
	}
	return d, nil
}

// NewRedis connects to the cache when it is enabled
func NewRedis(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// NewPlanner assembles a Planner from cfg
func NewPlanner(cfg *config.Config, proc *processing.Processor, detector detection.FaceDetector, log logrus.FieldLogger) *magickplan.Planner {
	return magickplan.New(
		magickplan.WithProcessor(proc),
		magickplan.WithDetector(detector),
		magickplan.WithLogger(log),
		magickplan.WithTool(cfg.Planner.Tool),
		magickplan.WithDetectTimeout(cfg.Detection.Timeout),
	)
}

// Server runs the HTTP API and, when enabled, the kafka worker
type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	httpServer *http.Server
	worker     *queue.Worker
	rdb        *redis.Client
}

// NewServer builds every component the configuration asks for
func NewServer(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Server, error) {
	proc, err := NewProcessor(cfg)
	if err != nil {
		return nil, err
	}

	rdb, err := NewRedis(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	detector, err := NewDetector(cfg, proc, rdb, log)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}
	if detector == nil {
		log.Warn("face detection disabled; face gravity requires caller-supplied faces")
	}

	planner := NewPlanner(cfg, proc, detector, log)
	maxBytes, _ := cfg.MaxSourceBytes()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := transport.NewPlanHandler(planner, maxBytes, log)

	s := &Server{
		cfg: cfg,
		log: log,
		rdb: rdb,
		httpServer: &http.Server{
			Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:           transport.InitRoutes(handler, log),
			MaxHeaderBytes:    1 << 20,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			ReadHeaderTimeout: 3 * time.Second,
		},
	}

	if cfg.Kafka.Enabled {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ResultTopic)
		s.worker = queue.NewWorker(queue.NewReader(cfg.Kafka), producer, planner, log)
	}
	return s, nil
}

// Run serves until ctx is cancelled, then shuts everything down
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("http server started")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if s.worker != nil {
		go func() {
			if err := s.worker.Run(workerCtx); err != nil {
				errCh <- fmt.Errorf("kafka worker: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
	case runErr = <-errCh:
		s.log.WithError(runErr).Error("component failed, shutting down")
	}
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Error("http server shutdown failed")
	}
	if s.worker != nil {
		if err := s.worker.Close(); err != nil {
			s.log.WithError(err).Error("kafka worker close failed")
		}
	}
	if s.rdb != nil {
		s.rdb.Close()
	}
	return runErr
}
