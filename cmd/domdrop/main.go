// Command domdrop runs the domain-auction ingestion service.
//
// Usage:
//
//	domdrop                                  # HTTP service + background pipeline
//	domdrop -ingest listings.csv -site sedo  # one-shot CSV ingestion, then exit
//
// Configuration is taken from the environment: PORT, DB_PATH, SCORER_CONFIG,
// MCP_TRANSPORT, QUEUE_VISIBILITY, RECOMPUTE_EVERY_N_JOBS, SWEEP_INTERVAL,
// STALE_AFTER, OPS_TIMEOUT, LOG_LEVEL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hazyhaar/domdrop/auctions"
	"github.com/hazyhaar/domdrop/connectivity"
	"github.com/hazyhaar/domdrop/observability"
	"github.com/hazyhaar/domdrop/vtq"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"
)

func main() {
	ingestFile := flag.String("ingest", "", "CSV file to ingest, then exit")
	ingestSite := flag.String("site", "", "marketplace tag for -ingest")
	flag.Parse()

	logLevel := env("LOG_LEVEL", "info")
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *ingestFile, *ingestSite); err != nil {
		logger.Error("domdrop: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, ingestFile, ingestSite string) error {
	dbPath := env("DB_PATH", "db/auctions.db")
	db, err := auctions.OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := observability.Init(db); err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	events := observability.NewEventLogger(db)

	queue := vtq.New(db, vtq.Options{
		Queue:      "pipeline",
		Visibility: durationEnv("QUEUE_VISIBILITY", time.Minute),
		Logger:     logger,
	})
	if err := queue.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure queue table: %w", err)
	}

	cfg := &auctions.Config{
		StaleAfter:          durationEnv("STALE_AFTER", 30*time.Minute),
		RecomputeEveryNJobs: intEnv("RECOMPUTE_EVERY_N_JOBS", 1),
	}

	opts := []auctions.ServiceOption{
		auctions.WithQueue(queue),
		auctions.WithEvents(events),
	}
	if path := os.Getenv("SCORER_CONFIG"); path != "" {
		scorerCfg, err := auctions.LoadScorerConfig(path)
		if err != nil {
			return fmt.Errorf("load scorer config: %w", err)
		}
		opts = append(opts, auctions.WithScoreFunc(auctions.DefaultScoreFunc(scorerCfg)))
	}

	svc := auctions.New(db, cfg, logger, opts...)
	defer svc.Close()

	if ingestFile != "" {
		return ingestCSV(ctx, svc, ingestFile, ingestSite)
	}

	// Connectivity router for service-to-service calls. Operations route
	// locally unless the routes table points one at a remote worker over
	// the http transport.
	router := connectivity.New(
		connectivity.WithLogger(logger),
		connectivity.WithMiddleware(
			connectivity.WithTimeout(durationEnv("OPS_TIMEOUT", 30*time.Second)),
			connectivity.WithRetry(2, time.Second, logger),
		),
	)
	router.RegisterTransport("http", connectivity.HTTPFactory())
	svc.RegisterConnectivity(router)
	if err := connectivity.EnsureTable(ctx, db); err != nil {
		return fmt.Errorf("ensure routes table: %w", err)
	}
	if err := router.Reload(ctx, db); err != nil {
		logger.Warn("domdrop: route reload", "error", err)
	}
	defer router.Close()

	// Optional MCP over stdio for operator tooling.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "domdrop",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("domdrop: mcp server", "error", err)
			}
		}()
	}

	// Background pipeline consumer and periodic expiry sweep.
	svc.Start(ctx)
	go sweepLoop(ctx, svc, logger, durationEnv("SWEEP_INTERVAL", time.Hour))

	return serveHTTP(ctx, apiRouter(svc, router), logger)
}

// sweepLoop periodically deletes expired canonical records.
func sweepLoop(ctx context.Context, svc *auctions.Service, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.SweepExpired(ctx); err != nil {
				logger.Warn("domdrop: expiry sweep", "error", err)
			}
		}
	}
}

// apiRouter builds the admin HTTP surface around the service and the
// connectivity router.
func apiRouter(svc *auctions.Service, ops *connectivity.Router) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/jobs", func(r chi.Router) {
		// Upload a listings CSV; returns the job id immediately.
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			site := req.URL.Query().Get("site")
			filename := req.URL.Query().Get("filename")
			if filename == "" {
				filename = "upload.csv"
			}
			reader, err := newCSVRowReader(req.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			// The request body dies with this handler, so drain the CSV
			// before responding; only staging runs in the background.
			var rows []*auctions.RawRow
			for {
				row, err := reader.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					writeError(w, http.StatusBadRequest, fmt.Errorf("read csv: %w", err))
					return
				}
				rows = append(rows, row)
			}
			job, err := svc.Upload(req.Context(), filename, site, auctions.RowsFromSlice(rows))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusAccepted, job)
		})

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
			jobs, err := svc.ListJobs(req.Context(), limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, jobs)
		})

		r.Post("/reset-stuck", func(w http.ResponseWriter, req *http.Request) {
			n, err := svc.ResetStuckJobs(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"reset": n})
		})

		r.Get("/{jobID}", func(w http.ResponseWriter, req *http.Request) {
			job, err := svc.GetJob(req.Context(), chi.URLParam(req, "jobID"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, job)
		})

		r.Post("/{jobID}/merge", func(w http.ResponseWriter, req *http.Request) {
			sum, err := svc.Merge(req.Context(), chi.URLParam(req, "jobID"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, sum)
		})

		r.Post("/{jobID}/fail", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Reason string `json:"reason"`
			}
			json.NewDecoder(req.Body).Decode(&body)
			if err := svc.FailJob(req.Context(), chi.URLParam(req, "jobID"), body.Reason); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			job, err := svc.GetJob(req.Context(), chi.URLParam(req, "jobID"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, job)
		})

		r.Get("/{jobID}/events", func(w http.ResponseWriter, req *http.Request) {
			limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
			evs, err := svc.JobEvents(req.Context(), chi.URLParam(req, "jobID"), limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, evs)
		})
	})

	r.Route("/api/scoring", func(r chi.Router) {
		r.Post("/batch", func(w http.ResponseWriter, req *http.Request) {
			size, _ := strconv.Atoi(req.URL.Query().Get("batch_size"))
			sum, err := svc.ProcessScoringBatch(req.Context(), size)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, sum)
		})

		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			stats, err := svc.Stats(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, stats)
		})
	})

	r.Post("/api/rankings/recalculate", func(w http.ResponseWriter, req *http.Request) {
		sum, err := svc.RecalculateRankings(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	})

	r.Get("/api/auctions/top", func(w http.ResponseWriter, req *http.Request) {
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		recs, err := svc.TopPreferred(req.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	})

	r.Get("/api/auctions/{domain}", func(w http.ResponseWriter, req *http.Request) {
		rec, err := svc.GetAuction(req.Context(), chi.URLParam(req, "domain"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, errors.New("domain not found"))
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	r.Route("/api/configs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			cfgs, err := svc.ListScoringConfigs(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, cfgs)
		})

		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var cfg auctions.ScoringConfig
			if err := json.NewDecoder(req.Body).Decode(&cfg); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := svc.AddScoringConfig(req.Context(), &cfg); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, cfg)
		})

		r.Post("/{id}/activate", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.ActivateScoringConfig(req.Context(), chi.URLParam(req, "id")); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"activated": chi.URLParam(req, "id")})
		})

		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.DeleteScoringConfig(req.Context(), chi.URLParam(req, "id")); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	// Generic operation dispatch through the connectivity router, honoring
	// any remote routes configured in the routes table.
	r.Post("/api/ops/{service}", func(w http.ResponseWriter, req *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(req.Body, maxOpsPayload))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := ops.Call(req.Context(), chi.URLParam(req, "service"), payload)
		if err != nil {
			var notFound *connectivity.ErrServiceNotFound
			if errors.As(err, &notFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, statusFor(err), err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	})

	return r
}

// maxOpsPayload caps request bodies on the generic ops endpoint (1 MiB).
const maxOpsPayload int64 = 1 << 20

func serveHTTP(ctx context.Context, handler http.Handler, logger *slog.Logger) error {
	port := env("PORT", "8086")
	srv := &http.Server{Addr: ":" + port, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("domdrop: listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ingestCSV runs a one-shot CLI ingestion and polls the job to completion.
func ingestCSV(ctx context.Context, svc *auctions.Service, path, site string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader, err := newCSVRowReader(f)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	job, err := svc.Upload(ctx, path, site, reader)
	if err != nil {
		return err
	}
	slog.Info("domdrop: ingestion started", "job_id", job.ID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			got, err := svc.GetJob(ctx, job.ID)
			if err != nil {
				return err
			}
			slog.Info("domdrop: job progress",
				"stage", got.Stage, "processed", got.Processed, "total", got.Total)
			if got.Terminal() {
				if got.Stage == auctions.StageFailed {
					return fmt.Errorf("job failed: %s", got.Error)
				}
				return nil
			}
		}
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auctions.ErrJobNotFound), errors.Is(err, auctions.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, auctions.ErrJobNotActive), errors.Is(err, auctions.ErrInvalidInput),
		errors.Is(err, auctions.ErrMissingDomain):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
