package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service   ServiceConfig   `koanf:"service"`
	Bird      BirdConfig      `koanf:"bird"`
	SSH       SSHConfig       `koanf:"ssh"`
	Poll      PollConfig      `koanf:"poll"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	Storage   StorageConfig   `koanf:"storage"`
	Retention RetentionConfig `koanf:"retention"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type BirdConfig struct {
	SocketPath string `koanf:"socket_path"`
	// ConfigFile seeds the client's config path. When empty it is learned
	// from the first configure reply.
	ConfigFile     string `koanf:"config_file"`
	BirdCmd        string `koanf:"bird_cmd"`
	QueryTimeoutMs int    `koanf:"query_timeout_ms"`
}

// SSHConfig selects the remote transport. When disabled the socket is
// dialed locally.
type SSHConfig struct {
	Enabled               bool   `koanf:"enabled"`
	Host                  string `koanf:"host"`
	Port                  int    `koanf:"port"`
	User                  string `koanf:"user"`
	Password              string `koanf:"password"`
	KeyFile               string `koanf:"key_file"`
	KnownHostsFile        string `koanf:"known_hosts_file"`
	InsecureIgnoreHostKey bool   `koanf:"insecure_ignore_host_key"`
	DialTimeoutSeconds    int    `koanf:"dial_timeout_seconds"`
}

type PollConfig struct {
	IntervalSeconds int  `koanf:"interval_seconds"`
	Detail          bool `koanf:"detail"`
}

type PostgresConfig struct {
	Enabled  bool   `koanf:"enabled"`
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

type KafkaConfig struct {
	Enabled  bool       `koanf:"enabled"`
	Brokers  []string   `koanf:"brokers"`
	ClientID string     `koanf:"client_id"`
	Topic    string     `koanf:"topic"`
	TLS      TLSConfig  `koanf:"tls"`
	SASL     SASLConfig `koanf:"sasl"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

type StorageConfig struct {
	StoreRawReply         bool `koanf:"store_raw_reply"`
	StoreRawReplyCompress bool `koanf:"store_raw_reply_compress"`
}

type RetentionConfig struct {
	Days     int    `koanf:"days"`
	Timezone string `koanf:"timezone"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: BIRD_COLLECTOR_BIRD__SOCKET_PATH → bird.socket_path
	if err := k.Load(env.Provider("BIRD_COLLECTOR_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BIRD_COLLECTOR_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := Defaults()

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Defaults returns the configuration used for keys absent from both the
// file and the environment.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "bird-collector-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Bird: BirdConfig{
			SocketPath:     "/var/run/bird/bird.ctl",
			BirdCmd:        "birdc",
			QueryTimeoutMs: 10000,
		},
		SSH: SSHConfig{
			Port:               22,
			DialTimeoutSeconds: 10,
		},
		Poll: PollConfig{
			IntervalSeconds: 30,
			Detail:          true,
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
			MinConns: 1,
		},
		Kafka: KafkaConfig{
			ClientID: "bird-collector",
			Topic:    "bird.peer-events",
		},
		Storage: StorageConfig{
			StoreRawReplyCompress: true,
		},
		Retention: RetentionConfig{
			Days:     30,
			Timezone: "UTC",
		},
	}
}

func (c *Config) Validate() error {
	if c.Bird.SocketPath == "" {
		return fmt.Errorf("config: bird.socket_path is required")
	}
	if c.Bird.QueryTimeoutMs <= 0 {
		return fmt.Errorf("config: bird.query_timeout_ms must be > 0 (got %d)", c.Bird.QueryTimeoutMs)
	}
	if c.SSH.Enabled {
		if c.SSH.Host == "" {
			return fmt.Errorf("config: ssh.host is required when ssh is enabled")
		}
		if c.SSH.User == "" {
			return fmt.Errorf("config: ssh.user is required when ssh is enabled")
		}
		if c.SSH.Password == "" && c.SSH.KeyFile == "" {
			return fmt.Errorf("config: ssh.password or ssh.key_file is required when ssh is enabled")
		}
		if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
			return fmt.Errorf("config: ssh.port must be in 1..65535 (got %d)", c.SSH.Port)
		}
		if c.Bird.BirdCmd == "" {
			return fmt.Errorf("config: bird.bird_cmd is required when ssh is enabled")
		}
	}
	if c.Poll.IntervalSeconds <= 0 {
		return fmt.Errorf("config: poll.interval_seconds must be > 0 (got %d)", c.Poll.IntervalSeconds)
	}
	if c.Postgres.Enabled {
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: postgres.dsn is required when postgres is enabled")
		}
		if c.Postgres.MaxConns <= 0 {
			return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
		}
		if c.Postgres.MinConns < 0 {
			return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
		}
	}
	if c.Storage.StoreRawReply && !c.Postgres.Enabled {
		return fmt.Errorf("config: storage.store_raw_reply requires postgres.enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required when kafka is enabled")
		}
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("config: retention.days must be > 0 (got %d)", c.Retention.Days)
	}
	if _, err := time.LoadLocation(c.Retention.Timezone); err != nil {
		return fmt.Errorf("config: retention.timezone is invalid: %w", err)
	}
	return nil
}

// QueryTimeout returns bird.query_timeout_ms as a duration.
func (b *BirdConfig) QueryTimeout() time.Duration {
	return time.Duration(b.QueryTimeoutMs) * time.Millisecond
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
