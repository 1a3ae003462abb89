package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fknsrs.biz/p/sorm"
	"github.com/gorilla/mux"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/tdewolff/minify"
	minjson "github.com/tdewolff/minify/json"
	"github.com/urfave/negroni/v2"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"fknsrs.biz/p/vidscribe/handlers"
	"fknsrs.biz/p/vidscribe/internal/config"
	"fknsrs.biz/p/vidscribe/internal/configreader"
	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/internal/ctxconfig"
	"fknsrs.biz/p/vidscribe/internal/ctxdb"
	"fknsrs.biz/p/vidscribe/internal/ctxhttpclient"
	"fknsrs.biz/p/vidscribe/internal/ctxjobqueue"
	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
	"fknsrs.biz/p/vidscribe/internal/ctxpipeline"
	"fknsrs.biz/p/vidscribe/internal/ctxsettings"
	"fknsrs.biz/p/vidscribe/internal/ctxtimer"
	"fknsrs.biz/p/vidscribe/internal/downloader"
	"fknsrs.biz/p/vidscribe/internal/ffmpeg"
	"fknsrs.biz/p/vidscribe/internal/httpcache"
	"fknsrs.biz/p/vidscribe/internal/jobqueue"
	"fknsrs.biz/p/vidscribe/internal/logrusstackhook"
	"fknsrs.biz/p/vidscribe/internal/markdown"
	"fknsrs.biz/p/vidscribe/internal/migrations"
	"fknsrs.biz/p/vidscribe/internal/pipeline"
	"fknsrs.biz/p/vidscribe/internal/queuenames"
	"fknsrs.biz/p/vidscribe/internal/settings"
	"fknsrs.biz/p/vidscribe/internal/sqlitelogger"
	"fknsrs.biz/p/vidscribe/internal/store"
	"fknsrs.biz/p/vidscribe/internal/toollimit"
	"fknsrs.biz/p/vidscribe/internal/transcriber"
	"fknsrs.biz/p/vidscribe/models"
)

func init() {
	sorm.SetParameterPrefix("?")
}

var cfg = config.Config{
	LogLevel:             logrus.InfoLevel,
	LogDebugLevels:       config.LevelList{logrus.DebugLevel, logrus.TraceLevel},
	LogQueries:           config.LogQueries{Enabled: true, SlowerThan: time.Millisecond * 100},
	LogSORM:              false,
	ApplicationAddr:      ":8000",
	ApplicationDatabase:  "vidscribe.db",
	ApplicationStatePath: "state.db",
	ApplicationDataPath:  "data",
	ApplicationMinify:    true,
	BackgroundWorkers:    2,
	JobReservation:       config.Duration(time.Hour * 3),
	DownloadTimeout:      config.Duration(time.Hour),
	ExtractTimeout:       config.Duration(time.Minute * 30),
	TranscribeTimeout:    config.Duration(time.Hour),
	HTTPCacheMaxAge:      config.Duration(time.Hour * 24),
	MaxDownloads:         2,
	MaxTranscodes:        2,
	MaxTranscriptions:    1,
	WhisperEngine:        settings.EngineLocal,
	WhisperModel:         transcriber.DefaultLocalModel,
	WhisperBinary:        "whisper-cli",
	WhisperModelsPath:    "models",
	WhisperCachedModels:  1,
	YTDLPBinary:          "yt-dlp",
	FFmpegBinary:         "ffmpeg",
}

func init() {
	for _, configPath := range []string{"config.toml", "config.yaml", "config.yml"} {
		if st, err := os.Stat(configPath); err == nil && st != nil && !st.IsDir() {
			cfg.Config = configPath
		}
	}
}

type simpleQueryLogger struct {
	logger *logrus.Logger
}

func (s *simpleQueryLogger) LogQuery(query string, args []interface{}) {
	fields := logrus.Fields{
		"db.query":      query,
		"db.args.count": len(args),
	}

	for i, e := range args {
		fields[fmt.Sprintf("db.args.%d", i)] = e
	}

	s.logger.WithFields(fields).Debug("sorm query start")
}

func (s *simpleQueryLogger) LogQueryAfter(query string, args []interface{}, duration time.Duration, err error) {
	fields := logrus.Fields{
		"db.query":      query,
		"db.duration":   duration,
		"db.error":      err,
		"db.args.count": len(args),
	}

	for i, e := range args {
		fields[fmt.Sprintf("db.args.%d", i)] = e
	}

	s.logger.WithFields(fields).Debug("sorm query finish")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := configreader.ReadWithOptions(os.Args[0], os.Args[1:], os.Environ(), &cfg, configreader.Options{EnvironmentPrefix: "VIDSCRIBE_"}); err != nil {
		panic(err)
	}

	ctx = ctxconfig.WithConfig(ctx, cfg)
	ctx = ctxclock.WithClock(ctx, ctxclock.Real())

	logger := logrus.New()

	logger.SetLevel(cfg.LogLevel)
	if len(cfg.LogDebugLevels) > 0 {
		logger.AddHook(logrusstackhook.New(cfg.LogDebugLevels, nil))
	}

	logger.WithFields(logrus.Fields{
		"config.config":                 cfg.Config,
		"config.log_level":              cfg.LogLevel,
		"config.log_debug_levels":       cfg.LogDebugLevels,
		"config.log_queries":            cfg.LogQueries,
		"config.log_sorm":               cfg.LogSORM,
		"config.application_addr":       cfg.ApplicationAddr,
		"config.application_database":   cfg.ApplicationDatabase,
		"config.application_state_path": cfg.ApplicationStatePath,
		"config.application_data_path":  cfg.ApplicationDataPath,
		"config.application_minify":     cfg.ApplicationMinify,
		"config.background_workers":     cfg.BackgroundWorkers,
		"config.job_reservation":        cfg.JobReservation,
		"config.http_cache_max_age":     cfg.HTTPCacheMaxAge,
		"config.max_downloads":          cfg.MaxDownloads,
		"config.max_transcodes":         cfg.MaxTranscodes,
		"config.max_transcriptions":     cfg.MaxTranscriptions,
		"config.whisper_engine":         cfg.WhisperEngine,
		"config.whisper_model":          cfg.WhisperModel,
	}).Info("program starting")

	if cfg.LogSORM {
		sorm.SetQueryLogger(&simpleQueryLogger{logger})
	}

	ctx = ctxlogger.WithLogger(ctx, logger)

	if err := run(ctx); err != nil {
		logger.WithError(err).Fatal("program failed")
	}

	logger.Info("program finished")
}

func run(ctx context.Context) error {
	for _, section := range []string{"videos", "cookies"} {
		if err := os.MkdirAll(cfg.DataFile(section), 0755); err != nil {
			return fmt.Errorf("run: could not create %s directory: %w", section, err)
		}
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer db.Close()

	ctx = ctxdb.WithDB(ctx, db)

	stateDB, err := bbolt.Open(cfg.ApplicationStatePath, 0600, &bbolt.Options{Timeout: time.Second * 5})
	if err != nil {
		return fmt.Errorf("run: could not open state database: %w", err)
	}
	defer stateDB.Close()

	settingsStore, err := settings.New(stateDB, settings.Settings{
		WhisperEngine: cfg.WhisperEngine,
		WhisperModel:  cfg.WhisperModel,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	cache := httpcache.NewTransport(nil, stateDB, httpcache.Options{MaxAge: cfg.HTTPCacheMaxAge.Std()})

	httpClient := &http.Client{
		Transport: cache,
		Timeout:   time.Minute,
	}

	ctx = ctxsettings.WithStore(ctx, settingsStore)
	ctx = ctxhttpclient.WithHTTPClient(ctx, httpClient)

	limits := toollimit.New(map[toollimit.Tool]int{
		toollimit.Download:   cfg.MaxDownloads,
		toollimit.Transcode:  cfg.MaxTranscodes,
		toollimit.Transcribe: cfg.MaxTranscriptions,
	})

	modelPool := transcriber.NewModelPool(transcriber.FileLoader(cfg.WhisperModelsPath), cfg.WhisperCachedModels)
	defer modelPool.Close()

	runner := pipeline.NewRunner(&pipeline.Driver{
		Store: &store.PipelineStore{DB: db},
		Downloader: &downloader.Downloader{
			Config: cfg,
			Credentials: func(ctx context.Context) ([]models.PlatformCredential, error) {
				return store.CredentialsInStoreOrder(ctx, db)
			},
			Limits: limits,
		},
		Extractor: &ffmpeg.Extractor{Config: cfg, Limits: limits},
		Transcriber: &transcriber.Service{
			Settings: settingsStore,
			Engines: map[string]transcriber.Engine{
				settings.EngineLocal:  &transcriber.Local{Binary: cfg.WhisperBinary, Pool: modelPool},
				settings.EngineOpenAI: &transcriber.Remote{BaseURL: cfg.OpenAIBaseURL},
			},
			Limits: limits,
		},
		Writer:  &markdown.Writer{Config: cfg},
		Resolve: cfg.ResolveDataFile,
		Timeouts: pipeline.Timeouts{
			Download:   cfg.DownloadTimeout.Std(),
			Extract:    cfg.ExtractTimeout.Std(),
			Transcribe: cfg.TranscribeTimeout.Std(),
		},
	})

	ctx = ctxpipeline.WithRunner(ctx, runner)

	queue := jobqueue.NewWorker(map[string]jobqueue.WorkerFunction{
		queuenames.VideoProcess: runner.WorkerFunction(),
	}, cfg.JobReservation.Std())

	ctx = ctxjobqueue.WithWorker(ctx, queue)

	if err := resumeStuckVideos(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	workers := []worker{
		{
			name: "application",
			run: func(ctx context.Context) error {
				return runApplicationWorker(ctx, cfg.ApplicationAddr)
			},
		},
	}

	workers = append(workers, worker{
		name: "http_cache.prune",
		run: func(ctx context.Context) error {
			return runCachePruneWorker(ctx, cache)
		},
	})

	for i := 0; i < cfg.BackgroundWorkers; i++ {
		workers = append(workers, worker{
			name: fmt.Sprintf("job_queue.%d", i),
			run:  runJobQueueWorker,
		})
	}

	return runAllWorkers(ctx, workers)
}

func openDatabase(ctx context.Context) (*sql.DB, error) {
	dbDriver := "sqlite3"

	if !cfg.LogQueries.IsZero() {
		dbDriver = "sqlite3:logged"

		sql.Register(dbDriver, sqlitelogger.New(&sqlite3.SQLiteDriver{}, sqlitelogger.Options{
			SlowerThan: cfg.LogQueries.SlowerThan,
			IgnoreCallers: []string{
				// polling
				"internal/jobqueue.findNextAndReserve",
			},
			HideFrames: []string{
				"database/sql",
				"net/http",
				"runtime",
				"github.com/gorilla/mux",
				"github.com/shogo82148/go-sql-proxy",
				"github.com/urfave/negroni/v2",
				"fknsrs.biz/p/sorm",
				"internal/ctx",
				"internal/sqlitelogger",
			},
		}))
	}

	if dir := filepath.Dir(cfg.ApplicationDatabase); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("openDatabase: %w", err)
		}
	}

	db, err := sql.Open(dbDriver, cfg.ApplicationDatabase+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("openDatabase: %w", err)
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := migrations.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("openDatabase: %w", err)
	}

	return db, nil
}

// resumeStuckVideos puts videos left mid-step by the last process back to
// where they can resume from and queues them again.
func resumeStuckVideos(ctx context.Context) error {
	l := ctxlogger.GetLogger(ctx)

	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		ids, err := store.ResetStuckVideos(ctx, tx, ctxclock.Now(ctx))
		if err != nil {
			return fmt.Errorf("resumeStuckVideos: %w", err)
		}

		for _, id := range ids {
			if _, err := pipeline.Enqueue(ctx, tx, id, pipeline.Options{}); err != nil {
				return fmt.Errorf("resumeStuckVideos: %w", err)
			}

			l.WithField("video.id", id).Info("resuming video that was interrupted")
		}

		return nil
	})
}

type worker struct {
	name string
	run  func(ctx context.Context) error
}

// runAllWorkers runs every worker until ctx is done. A worker that returns
// early is restarted after a pause; one that fails stops them all.
func runAllWorkers(ctx context.Context, workers []worker) error {
	g, ctx := errgroup.WithContext(ctx)

	for id, w := range workers {
		id, w := id, w

		g.Go(func() error {
			l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
				"worker.id":   id + 1,
				"worker.name": w.name,
			})

			ctx := ctxlogger.WithLogger(ctx, l)

			for {
				if err := w.run(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}

					l.WithError(err).Error("worker failed")

					return fmt.Errorf("worker %d (%s) failed: %w", id+1, w.name, err)
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Second):
					l.Info("worker restarted")
				}
			}
		})
	}

	return g.Wait()
}

func runCachePruneWorker(ctx context.Context, cache *httpcache.Transport) error {
	for {
		n, err := cache.Prune(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			ctxlogger.GetLogger(ctx).WithField("http_cache.pruned", n).Info("pruned http cache")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Hour):
		}
	}
}

// isEventStream picks out responses the minifier must not buffer.
func isEventStream(r *http.Request) bool {
	return strings.HasSuffix(r.URL.Path, "/events") || strings.Contains(r.Header.Get("accept"), "text/event-stream")
}

func runApplicationWorker(ctx context.Context, addr string) error {
	l := ctxlogger.GetLogger(ctx)

	l.WithFields(logrus.Fields{
		"args.addr": addr,
	}).Info("running application worker")

	m := mux.NewRouter()
	handlers.Register(m)

	min := minify.New()
	min.AddFunc("application/json", minjson.Minify)

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseFunc(ctxlogger.Register(l))
	n.UseFunc(ctxtimer.Register())
	n.UseFunc(ctxclock.Register(ctxclock.GetClock(ctx)))
	n.UseFunc(ctxconfig.Register(ctxconfig.GetConfig(ctx)))
	n.UseFunc(ctxdb.Register(ctxdb.GetDB(ctx)))
	n.UseFunc(ctxjobqueue.Register(ctxjobqueue.GetWorker(ctx)))
	n.UseFunc(ctxsettings.Register(ctxsettings.GetStore(ctx)))
	n.UseFunc(ctxhttpclient.Register(ctxhttpclient.GetHTTPClient(ctx)))
	n.UseFunc(ctxpipeline.Register(ctxpipeline.GetRunner(ctx)))
	n.UseFunc(ctxtimer.AddLoggerHooks())
	n.UseFunc(ctxclock.AddLoggerHooks())
	n.UseFunc(ctxlogger.Log())

	if cfg.ApplicationMinify {
		n.UseFunc(func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
			if !isEventStream(r) {
				mw := min.ResponseWriter(rw, r)
				defer mw.Close()
				rw = mw
			}

			next(rw, r)
		})
	}

	n.UseHandler(m)

	s := &http.Server{
		Addr:              addr,
		Handler:           n,
		ReadHeaderTimeout: time.Second * 10,
		BaseContext:       func(l net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		l.Info("starting server")
		errs <- s.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		l.Info("stopping server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*10)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}

func runJobQueueWorker(ctx context.Context) error {
	l := ctxlogger.GetLogger(ctx)

	l.Info("running job queue worker")

	w := ctxjobqueue.GetWorker(ctx)
	if w == nil {
		return fmt.Errorf("job queue worker not available in context")
	}

	return w.Run(ctx)
}
