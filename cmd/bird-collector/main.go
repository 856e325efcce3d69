package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/route-beacon/bird-collector/internal/client"
	"github.com/route-beacon/bird-collector/internal/collector"
	"github.com/route-beacon/bird-collector/internal/config"
	"github.com/route-beacon/bird-collector/internal/configfile"
	"github.com/route-beacon/bird-collector/internal/control"
	"github.com/route-beacon/bird-collector/internal/db"
	birdhttp "github.com/route-beacon/bird-collector/internal/http"
	"github.com/route-beacon/bird-collector/internal/kafka"
	"github.com/route-beacon/bird-collector/internal/maintenance"
	"github.com/route-beacon/bird-collector/internal/metrics"
	"github.com/route-beacon/bird-collector/internal/snapshot"
	"github.com/route-beacon/bird-collector/migrations"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "maintenance":
		runMaintenance()
	case "status", "peers", "routes", "configure", "check-config", "get-config":
		runQuery(os.Args[1])
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bird-collector <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve          Start the polling service")
	fmt.Println("  migrate        Run database migrations")
	fmt.Println("  maintenance    Run snapshot maintenance (create partitions, drop old data)")
	fmt.Println("  status         Print daemon status")
	fmt.Println("  peers [name]   Print BGP sessions, or one session")
	fmt.Println("  routes         Print routes (--table, --prefix, --protocol, --all)")
	fmt.Println("  configure      Reload the daemon configuration (--soft, --timeout <sec>)")
	fmt.Println("  check-config   Check the daemon configuration without applying it")
	fmt.Println("  get-config     Print the daemon configuration file")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

type flags struct {
	configPath string
	logLevel   string
	table      string
	prefix     string
	protocol   string
	all        bool
	soft       bool
	timeout    int
	args       []string
}

func parseFlags(args []string) flags {
	var f flags
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				f.configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				f.logLevel = args[i+1]
				i++
			}
		case "--table":
			if i+1 < len(args) {
				f.table = args[i+1]
				i++
			}
		case "--prefix":
			if i+1 < len(args) {
				f.prefix = args[i+1]
				i++
			}
		case "--protocol":
			if i+1 < len(args) {
				f.protocol = args[i+1]
				i++
			}
		case "--timeout":
			if i+1 < len(args) {
				f.timeout, _ = strconv.Atoi(args[i+1])
				i++
			}
		case "--all":
			f.all = true
		case "--soft":
			f.soft = true
		default:
			f.args = append(f.args, args[i])
		}
	}
	return f
}

func loadConfig(f flags) (*config.Config, *zap.Logger) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if f.logLevel != "" {
		cfg.Service.LogLevel = f.logLevel
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// migrationsFS prefers a migrations directory next to the binary and falls
// back to the schema compiled into it.
func migrationsFS() (fs.FS, string) {
	exe, err := os.Executable()
	if err == nil {
		dir := filepath.Join(filepath.Dir(exe), "migrations")
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir), dir
		}
	}
	return migrations.FS, "embedded"
}

// newClient builds the transport selected by the ssh section and a client
// on top of it. The config file is read over the same SSH connection when
// the daemon is remote.
func newClient(cfg *config.Config, logger *zap.Logger) (*client.Client, control.Transport) {
	var transport control.Transport
	var store configfile.Store

	if cfg.SSH.Enabled {
		sshTransport := control.NewSSH(control.SSHOptions{
			Host:                  cfg.SSH.Host,
			Port:                  cfg.SSH.Port,
			User:                  cfg.SSH.User,
			Password:              cfg.SSH.Password,
			KeyFile:               cfg.SSH.KeyFile,
			KnownHostsFile:        cfg.SSH.KnownHostsFile,
			InsecureIgnoreHostKey: cfg.SSH.InsecureIgnoreHostKey,
			DialTimeout:           time.Duration(cfg.SSH.DialTimeoutSeconds) * time.Second,
			Timeout:               cfg.Bird.QueryTimeout(),
			BirdCmd:               cfg.Bird.BirdCmd,
			SocketPath:            cfg.Bird.SocketPath,
		}, logger.Named("control.ssh"))
		transport = sshTransport
		store = configfile.NewRemote(sshTransport)
	} else {
		transport = control.NewSocket(cfg.Bird.SocketPath, cfg.Bird.QueryTimeout())
		store = configfile.Local{}
	}

	c := client.New(transport, client.Options{
		ConfigFile: cfg.Bird.ConfigFile,
		Store:      store,
	}, logger.Named("client"))
	return c, transport
}

func runServe() {
	cfg, logger := loadConfig(parseFlags(os.Args[2:]))
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bird-collector",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("http_listen", cfg.Service.HTTPListen),
		zap.Bool("ssh", cfg.SSH.Enabled),
		zap.String("socket_path", cfg.Bird.SocketPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	birdClient, transport := newClient(cfg, logger)
	defer transport.Close()

	var wg sync.WaitGroup
	var writer collector.SnapshotWriter
	var publisher collector.EventPublisher
	var dbChecker birdhttp.DBChecker

	if cfg.Postgres.Enabled {
		pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns, cfg.Service.InstanceID)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		// Ensure partitions exist on startup.
		pm := maintenance.NewPartitionManager(pool, cfg.Retention.Days, cfg.Retention.Timezone, logger.Named("maintenance"))
		if err := pm.CreatePartitions(ctx); err != nil {
			logger.Fatal("failed to create partitions on startup", zap.Error(err))
		}
		wg.Add(1)
		go func() { defer wg.Done(); pm.RunEvery(ctx, time.Hour) }()

		writer = snapshot.NewWriter(pool, logger.Named("snapshot.writer"),
			cfg.Storage.StoreRawReply, cfg.Storage.StoreRawReplyCompress)
		dbChecker = pool
	}

	if cfg.Kafka.Enabled {
		tlsCfg, err := cfg.Kafka.BuildTLSConfig()
		if err != nil {
			logger.Fatal("failed to build TLS config", zap.Error(err))
		}
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.Topic,
			tlsCfg, cfg.Kafka.BuildSASLMechanism(), logger.Named("kafka.producer"))
		if err != nil {
			logger.Fatal("failed to create kafka producer", zap.Error(err))
		}
		defer producer.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := producer.Ping(pingCtx); err != nil {
			logger.Warn("kafka brokers not reachable yet", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Error(err))
		}
		pingCancel()
		publisher = producer
	}

	poller := collector.NewPoller(birdClient, collector.Options{
		Interval:   time.Duration(cfg.Poll.IntervalSeconds) * time.Second,
		Detail:     cfg.Poll.Detail,
		InstanceID: cfg.Service.InstanceID,
		Writer:     writer,
		Publisher:  publisher,
	}, logger.Named("collector"))

	wg.Add(1)
	go func() { defer wg.Done(); poller.Run(ctx) }()

	logger.Info("poller started",
		zap.Int("interval_seconds", cfg.Poll.IntervalSeconds),
		zap.Bool("detail", cfg.Poll.Detail),
		zap.Bool("postgres", cfg.Postgres.Enabled),
		zap.Bool("kafka", cfg.Kafka.Enabled),
	)

	httpServer := birdhttp.NewServer(cfg.Service.HTTPListen, dbChecker, poller, birdClient, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting HTTP traffic first.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("poller stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, some goroutines may not have finished")
	}

	logger.Info("bird-collector stopped")
}

func runMigrate() {
	cfg, logger := loadConfig(parseFlags(os.Args[2:]))
	defer logger.Sync()

	logger.Info("running migrations",
		zap.String("dsn", redactDSN(cfg.Postgres.DSN)),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns, cfg.Service.InstanceID)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	fsys, source := migrationsFS()
	logger.Info("reading migrations", zap.String("source", source))
	if err := db.RunMigrations(ctx, pool, fsys, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func runMaintenance() {
	cfg, logger := loadConfig(parseFlags(os.Args[2:]))
	defer logger.Sync()

	logger.Info("running snapshot maintenance",
		zap.Int("retention_days", cfg.Retention.Days),
		zap.String("timezone", cfg.Retention.Timezone),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns, cfg.Service.InstanceID)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pm := maintenance.NewPartitionManager(pool, cfg.Retention.Days, cfg.Retention.Timezone, logger)
	if err := pm.Run(ctx); err != nil {
		logger.Fatal("maintenance failed", zap.Error(err))
	}

	logger.Info("snapshot maintenance complete")
}

// runQuery runs one client operation and prints the result as JSON.
func runQuery(command string) {
	f := parseFlags(os.Args[2:])
	cfg, logger := loadConfig(f)
	defer logger.Sync()

	birdClient, transport := newClient(cfg, logger)
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bird.QueryTimeout())
	defer cancel()

	result, err := dispatch(ctx, birdClient, command, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		if errors.Is(err, client.ErrPeerNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	if s, ok := result.(string); ok {
		fmt.Print(s)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encoding result: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, c *client.Client, command string, f flags) (any, error) {
	switch command {
	case "status":
		return c.Status(ctx)
	case "peers":
		if len(f.args) > 0 {
			return c.Peer(ctx, f.args[0])
		}
		return c.Peers(ctx)
	case "routes":
		return c.Routes(ctx, client.RouteQuery{
			Table:  f.table,
			Prefix: f.prefix,
			Peer:   f.protocol,
			Full:   f.all,
		})
	case "configure":
		return c.Configure(ctx, client.ConfigureOptions{
			Soft:    f.soft,
			Timeout: time.Duration(f.timeout) * time.Second,
		})
	case "check-config":
		return c.CheckConfig(ctx)
	case "get-config":
		return c.GetConfig(ctx)
	}
	return nil, fmt.Errorf("unknown command %q", command)
}

var dsnPasswordRe = regexp.MustCompile(`password\s*=\s*\S+`)

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		// keyword=value format: redact password=... portion
		return dsnPasswordRe.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
