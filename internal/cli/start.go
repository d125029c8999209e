package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Golemata/internal/api"
	"github.com/shaiso/Golemata/internal/descriptor"
	"github.com/shaiso/Golemata/internal/domain"
	"github.com/shaiso/Golemata/internal/mq"
	"github.com/shaiso/Golemata/internal/provider"
	"github.com/shaiso/Golemata/internal/repo"
	"github.com/shaiso/Golemata/internal/runner"
	"github.com/shaiso/Golemata/internal/streams"
	"github.com/shaiso/Golemata/internal/telemetry"
)

// shutdownTimeout — предел времени на штатный останов приложения.
const shutdownTimeout = 5 * time.Minute

// NewStartCmd создаёт команду `golemata start`.
func NewStartCmd(outputFn func() *Output) *cobra.Command {
	var configPaths []string
	var runsDir string
	var listen string
	var commandsFile string

	cmd := &cobra.Command{
		Use:   "start DESCRIPTOR [DESCRIPTOR...]",
		Short: "Start an application and run it until stopped",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(startOptions{
				out:          outputFn(),
				configPaths:  configPaths,
				descriptors:  args,
				runsDir:      runsDir,
				listen:       listen,
				commandsFile: commandsFile,
			})
		},
	}

	cmd.Flags().StringSliceVar(&configPaths, "config", nil, "Runner config YAML (repeatable, merged in order)")
	cmd.Flags().StringVar(&runsDir, "runs-dir", DefaultRunsDir(), "Base directory for run files")
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:4578", "Control API listen address")
	cmd.Flags().StringVar(&commandsFile, "commands-file", "", "File polled for inbound commands, one JSON per line")
	cmd.MarkFlagRequired("config")

	return cmd
}

// startOptions — собранные параметры запуска.
type startOptions struct {
	out          *Output
	configPaths  []string
	descriptors  []string
	runsDir      string
	listen       string
	commandsFile string
}

// runStart поднимает сессию приложения и блокируется до её конца.
func runStart(opts startOptions) error {
	cfg, err := descriptor.LoadConfig(opts.configPaths...)
	if err != nil {
		return err
	}
	dapp, err := descriptor.LoadDapp(opts.descriptors...)
	if err != nil {
		return err
	}
	if err := descriptor.VerifyManifests(dapp); err != nil {
		return err
	}

	session := domain.NewSession(NewRunID())
	rf, err := OpenRunFiles(opts.runsDir, session.RunID)
	if err != nil {
		return err
	}
	defer rf.Close()

	logger := telemetry.SetupLoggerWriter(rf.Log)
	logger = telemetry.WithSessionID(logger, session.ID.String())
	logger.Info("session starting", "run_id", session.RunID, "descriptors", opts.descriptors)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Провайдер и оценка офферов с чёрным списком.
	prov := provider.NewDaemonClient(provider.DaemonConfig{
		Node:    cfg.Node,
		Payment: cfg.Payment,
		Logger:  logger,
	})
	scorer := provider.NewBlacklistScorer(provider.ScorerFunc(
		func(context.Context, provider.Offer) (float64, error) { return 0, nil },
	), logger)

	r, err := runner.New(runner.Config{
		Dapp:     dapp,
		Runtime:  cfg,
		Provider: prov,
		Scorer:   scorer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// Потоки: файлы запуска, буферы control API, опционально AMQP.
	streamer := streams.NewStreamer(logger)
	stateBuf := api.NewStreamBuffer(200)
	dataBuf := api.NewStreamBuffer(200)

	streamer.RegisterStream(r.States(), streams.NewWriterSink(rf.State), jsonFormat)
	streamer.RegisterStream(r.States(), stateBuf, jsonFormat)
	streamer.RegisterStream(r.Data(), streams.NewWriterSink(rf.Data), jsonFormat)
	streamer.RegisterStream(r.Data(), dataBuf, jsonFormat)

	control := make(chan domain.Command, 1)

	mqConn := setupMQ(ctx, r, streamer, session, control, logger)
	if mqConn != nil {
		defer mqConn.Close()
	}

	sessionRepo := setupDB(ctx, session, logger)

	// Входящие команды из файла.
	if opts.commandsFile != "" {
		commandQ := make(chan any, 16)
		go func() {
			if err := streams.FeedFromFile(ctx, opts.commandsFile, commandQ, logger); err != nil && ctx.Err() == nil {
				logger.Error("command file feed failed", "error", err)
			}
		}()
		go func() {
			for msg := range commandQ {
				raw, _ := msg.(string)
				dispatchCommand(ctx, r, control, logger, []byte(raw))
			}
		}()
	}

	// Control API + /metrics.
	handler := api.NewHandler(api.Config{
		Runner:      r,
		Session:     session,
		SessionRepo: sessionRepo,
		Control:     control,
		StateBuffer: stateBuf,
		DataBuffer:  dataBuf,
		Logger:      logger,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{Addr: opts.listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("control api failed", "error", err)
		}
	}()

	if err := r.Start(ctx); err != nil {
		server.Close()
		return err
	}
	opts.out.Success(fmt.Sprintf("Session %s started, files in %s", session.RunID, rf.Dir))

	suspend := waitForShutdown(ctx, r, control, session, sessionRepo, logger)

	// Сигналам возвращается поведение по умолчанию: повторный SIGINT
	// во время останова убивает процесс немедленно.
	stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if suspend {
		snap, err := r.Suspend(stopCtx)
		if err != nil {
			logger.Error("suspend failed", "error", err)
		} else {
			path := filepath.Join(rf.Dir, "suspend.yaml")
			if err := os.WriteFile(path, snap, 0o600); err != nil {
				logger.Error("suspend snapshot write failed", "error", err)
			} else {
				session.Snapshot = snap
				opts.out.Success("Suspend snapshot written to " + path)
			}
		}
	} else {
		r.Stop(stopCtx)
	}

	// Дописываем уже поставленные в очереди записи потоков.
	streamer.Stop()

	session.Finish(r.State())
	if sessionRepo != nil {
		if err := sessionRepo.Finish(stopCtx, session); err != nil {
			logger.Error("session mirror finish failed", "error", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	server.Shutdown(shutdownCtx)

	logger.Info("session finished", "state", session.State)
	opts.out.Success(fmt.Sprintf("Session %s finished: %s", session.RunID, session.State))
	return nil
}

// waitForShutdown блокируется до сигнала, команды управления или
// терминального состояния приложения. Возвращает true для suspend.
func waitForShutdown(
	ctx context.Context,
	r *runner.Runner,
	control <-chan domain.Command,
	session *domain.Session,
	sessionRepo *repo.SessionRepo,
	logger *slog.Logger,
) bool {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return false

		case cmd := <-control:
			logger.Info("control command received", "command", cmd)
			return cmd == domain.CommandSuspend

		case <-ticker.C:
			state := r.State()
			if state != session.State {
				session.State = state
				if sessionRepo != nil {
					if err := sessionRepo.UpdateState(ctx, session.ID, state); err != nil {
						logger.Warn("session mirror update failed", "error", err)
					}
				}
			}
			if state == domain.AppStateTerminated || state == domain.AppStateSuspended {
				return state == domain.AppStateSuspended
			}
		}
	}
}

// setupMQ подключает зеркало потоков и consumer команд, если задан
// RABBITMQ_URL. Без него сессия работает в локальном режиме.
func setupMQ(
	ctx context.Context,
	r *runner.Runner,
	streamer *streams.Streamer,
	session *domain.Session,
	control chan<- domain.Command,
	logger *slog.Logger,
) *mq.Connection {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		logger.Info("RABBITMQ_URL not set, stream mirror disabled")
		return nil
	}

	conn, err := mq.NewConnection(url, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable, stream mirror disabled", "error", err)
		return nil
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("rabbitmq topology setup failed, stream mirror disabled", "error", err)
		conn.Close()
		return nil
	}

	pub := mq.NewPublisher(conn, logger)
	streamer.RegisterStream(r.States(), mq.NewStateSink(pub, session.ID), jsonFormat)
	streamer.RegisterStream(r.Data(), mq.NewDataSink(pub, session.ID), jsonFormat)

	consumer := mq.NewCommandConsumer(conn, logger, func(ctx context.Context, d *mq.Delivery) error {
		payload, err := mq.ParsePayload[mq.CommandPayload](&d.Message)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		dispatchCommand(ctx, r, control, logger, raw)
		return nil
	})
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("command consumer stopped", "error", err)
		}
	}()

	return conn
}

// setupDB подключает зеркало сессии в Postgres, если задан DB_URL.
func setupDB(ctx context.Context, session *domain.Session, logger *slog.Logger) *repo.SessionRepo {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		logger.Info("DB_URL not set, session mirror disabled")
		return nil
	}

	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		logger.Warn("postgres unavailable, session mirror disabled", "error", err)
		return nil
	}

	sessionRepo := repo.NewSessionRepo(pool)
	if err := sessionRepo.Create(ctx, session); err != nil {
		logger.Warn("session mirror create failed", "error", err)
		return nil
	}
	return sessionRepo
}

// dispatchCommand разбирает входящую команду и направляет её либо в
// канал управления, либо на экземпляр узла.
func dispatchCommand(
	ctx context.Context,
	r *runner.Runner,
	control chan<- domain.Command,
	logger *slog.Logger,
	raw []byte,
) {
	var req CommandRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		// Не JSON — трактуем строку как команду уровня приложения.
		req = CommandRequest{Command: string(raw)}
	}

	if req.Command != "" {
		cmd, ok := domain.ParseCommand(req.Command)
		if !ok {
			logger.Warn("unknown control command", "command", req.Command)
			return
		}
		select {
		case control <- cmd:
		default:
			logger.Warn("control command already in flight, dropped", "command", cmd)
		}
		return
	}

	if req.Node == "" {
		logger.Warn("command without target", "raw", string(raw))
		return
	}
	if err := r.Exec(ctx, req.Node, req.Index, req.Commands); err != nil {
		logger.Error("node command failed", "node", req.Node, "error", err)
	}
}

// jsonFormat сериализует запись потока в одну JSON-строку.
func jsonFormat(msg any) string {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Sprint(msg)
	}
	return string(raw)
}
