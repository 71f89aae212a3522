// Package daemon wires chatsyncd together with fx: stores, inbox, directory,
// relay, gRPC and admin servers.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"cloud.google.com/go/firestore"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/firestoredb"
	"github.com/matheus3301/chatsync/internal/inbox"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/msglog"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/matheus3301/chatsync/internal/push"
	"github.com/matheus3301/chatsync/internal/relay"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	Config  *config.Config
	// Dir overrides the profile directory; empty = profile.Dir(Profile).
	Dir string
	// SocketPath overrides the socket location; empty = <dir>/daemon.sock.
	SocketPath string
}

func (p Params) dir() string {
	if p.Dir != "" {
		return p.Dir
	}
	return profile.Dir(p.Profile)
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return filepath.Join(p.dir(), "daemon.sock")
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p, p.Config),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideFirestore,
			provideMessageStore,
			provideInboxStore,
			provideRedis,
			provideDirectory,
			provideSummary,
			providePusher,
			provideRelay,
			provideServices,
			provideTelemetry,
			provideAdmin,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:    filepath.Join(p.dir(), "logs", "chatsyncd.log"),
		Profile: p.Profile,
		Level:   cfg.Log.Level,
	})
}

func provideBus() *bus.Bus {
	b := bus.New()
	metrics.RegisterBusDrops(b.Dropped)
	return b
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewDaemon(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore opens the profile database. It is always present: it holds
// relay checkpoints and delivery records even when messages live in
// Firestore. The lock parameter orders it after lock acquisition.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.dir(), "chatsync.db")
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed() {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// provideFirestore returns nil unless the firestore backend is selected.
func provideFirestore(cfg *config.Config, logger *zap.Logger) (*firestore.Client, error) {
	if cfg.Store.Backend != "firestore" {
		return nil, nil
	}
	client, err := firestoredb.NewClient(context.Background(), cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return nil, err
	}
	logger.Info("firestore backend selected", zap.String("project_id", cfg.Firebase.ProjectID))
	return client, nil
}

func provideMessageStore(cfg *config.Config, db *store.DB, fs *firestore.Client, b *bus.Bus, logger *zap.Logger) chat.MessageStore {
	if fs != nil {
		return firestoredb.NewMessages(fs, b, logger, cfg.Store.WriteTimeout.Duration, cfg.Subscription.Buffer)
	}
	return msglog.New(db, b, logger, msglog.Options{
		WriteTimeout: cfg.Store.WriteTimeout.Duration,
		PollInterval: cfg.Subscription.PollInterval.Duration,
		Buffer:       cfg.Subscription.Buffer,
	})
}

func provideInboxStore(db *store.DB, fs *firestore.Client) inbox.Store {
	if fs != nil {
		return firestoredb.NewInbox(fs)
	}
	return db
}

// provideRedis returns nil when no cache address is configured.
func provideRedis(cfg *config.Config) *redis.Client {
	if cfg.Directory.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.Directory.RedisAddr})
}

func provideDirectory(cfg *config.Config, db *store.DB, fs *firestore.Client, rdb *redis.Client, logger *zap.Logger) *directory.Cached {
	var next directory.Registry = directory.NewLocal(db)
	if fs != nil {
		next = firestoredb.NewUsers(fs)
	}
	return directory.NewCached(next, rdb, cfg.Directory.CacheTTL.Duration, logger)
}

func provideSummary(s inbox.Store, dir *directory.Cached, b *bus.Bus, logger *zap.Logger) *inbox.Summary {
	return inbox.New(s, dir, b, logger)
}

func providePusher(cfg *config.Config, logger *zap.Logger) (push.Pusher, error) {
	switch cfg.Push.Driver {
	case "fcm":
		return push.NewFCM(context.Background(), cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	case "amqp":
		return push.NewAMQP(cfg.Push.AMQPURL, cfg.Push.Exchange, cfg.Push.RoutingKey)
	case "log", "":
		return push.NewLog(logger), nil
	}
	return nil, fmt.Errorf("unknown push driver %q", cfg.Push.Driver)
}

func provideRelay(cfg *config.Config, db *store.DB, dir *directory.Cached, pusher push.Pusher, b *bus.Bus, logger *zap.Logger) *relay.Relay {
	return relay.New(db, dir, pusher, b, logger, relay.Options{
		PollInterval: cfg.Relay.PollInterval.Duration,
		BatchSize:    cfg.Relay.BatchSize,
		Backlog:      cfg.Store.Backend == "sqlite",
	})
}

func provideServices(p Params, cfg *config.Config, ms chat.MessageStore, summary *inbox.Summary, dir *directory.Cached, m *status.Machine, logger *zap.Logger) api.Services {
	return api.Services{
		Messages:  api.NewMessageService(ms, logger),
		Inbox:     api.NewInboxService(summary),
		Directory: api.NewDirectoryService(dir),
		Daemon: api.NewDaemonService(api.DaemonInfo{
			Profile:    p.Profile,
			Backend:    cfg.Store.Backend,
			PushDriver: cfg.Push.Driver,
		}, m),
		Health: health.NewServer(),
	}
}

func provideTelemetry(cfg *config.Config, logger *zap.Logger) (telemetry.Shutdown, error) {
	return telemetry.Setup(context.Background(), cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, logger)
}

func provideAdmin(cfg *config.Config, m *status.Machine, db *store.DB, logger *zap.Logger) *AdminServer {
	return NewAdminServer(cfg.Admin.Addr, NewAdminRouter(m, db), logger)
}

type lifecycleParams struct {
	fx.In

	Server    *Server
	Admin     *AdminServer
	Lock      *lock.Lock
	DB        *store.DB
	Firestore *firestore.Client
	Redis     *redis.Client
	Directory *directory.Cached
	Relay     *relay.Relay
	Pusher    push.Pusher
	Config    *config.Config
	Machine   *status.Machine
	Telemetry telemetry.Shutdown
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, lp lifecycleParams) {
	logger := lp.Logger
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if lp.Redis != nil {
				if err := lp.Directory.Ping(ctx); err != nil {
					logger.Warn("directory cache unreachable, continuing uncached lookups", zap.Error(err))
					_ = lp.Machine.Transition(status.Degraded)
				}
			}

			if lp.Config.Relay.Enabled {
				if err := lp.Relay.Start(context.Background()); err != nil {
					return fmt.Errorf("start relay: %w", err)
				}
				logger.Info("relay started", zap.String("driver", lp.Pusher.Name()))
			}

			go func() {
				if err := lp.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
					_ = lp.Machine.Transition(status.Error)
				}
			}()

			// The admin address comes from the shared config file, so another
			// profile's daemon may already hold it.
			if err := lp.Admin.Start(); err != nil {
				logger.Warn("admin server unavailable, continuing without it", zap.Error(err))
				_ = lp.Machine.Transition(status.Degraded)
			}

			if lp.Machine.Current() == status.Booting {
				_ = lp.Machine.Transition(status.Ready)
			}
			logger.Info("daemon ready", zap.String("state", string(lp.Machine.Current())))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = lp.Machine.Transition(status.Stopping)
			lp.Server.Stop(ctx)
			if err := lp.Admin.Stop(ctx); err != nil {
				logger.Warn("error stopping admin server", zap.Error(err))
			}
			lp.Relay.Stop()
			if c, ok := lp.Pusher.(interface{ Close() error }); ok {
				if err := c.Close(); err != nil {
					logger.Warn("error closing push driver", zap.Error(err))
				}
			}
			if lp.Redis != nil {
				_ = lp.Redis.Close()
			}
			if lp.Firestore != nil {
				_ = lp.Firestore.Close()
			}
			if err := lp.Telemetry(ctx); err != nil {
				logger.Warn("error flushing traces", zap.Error(err))
			}
			if err := lp.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lp.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
