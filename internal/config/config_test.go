package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Service.InstanceID = "test"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("expected defaults to be valid, got error: %v", err)
	}
}

func TestValidate_NoSocketPath(t *testing.T) {
	cfg := validConfig()
	cfg.Bird.SocketPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty socket_path")
	}
}

func TestValidate_QueryTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Bird.QueryTimeoutMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for query_timeout_ms = 0")
	}
}

func TestValidate_SSH(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SSHConfig)
		wantErr bool
	}{
		{"password auth", func(s *SSHConfig) {}, false},
		{"key auth", func(s *SSHConfig) { s.Password = ""; s.KeyFile = "/root/.ssh/id_ed25519" }, false},
		{"no host", func(s *SSHConfig) { s.Host = "" }, true},
		{"no user", func(s *SSHConfig) { s.User = "" }, true},
		{"no credentials", func(s *SSHConfig) { s.Password = "" }, true},
		{"bad port", func(s *SSHConfig) { s.Port = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.SSH.Enabled = true
			cfg.SSH.Host = "rs1.example.net"
			cfg.SSH.User = "bird"
			cfg.SSH.Password = "secret"
			tt.mutate(&cfg.SSH)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_SSHDisabledIgnoresFields(t *testing.T) {
	cfg := validConfig()
	cfg.SSH.Port = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_PollIntervalZero(t *testing.T) {
	cfg := validConfig()
	cfg.Poll.IntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for poll.interval_seconds = 0")
	}
}

func TestValidate_PostgresEnabledNoDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty DSN")
	}
	cfg.Postgres.DSN = "postgres://localhost/test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_RawReplyRequiresPostgres(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.StoreRawReply = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for store_raw_reply without postgres")
	}
}

func TestValidate_KafkaEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty brokers")
	}
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestValidate_RetentionDaysZero(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.Days = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for retention.days = 0")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func TestValidate_InvalidTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.Timezone = "Not/A/Real/Zone"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestQueryTimeout(t *testing.T) {
	b := BirdConfig{QueryTimeoutMs: 2500}
	if got := b.QueryTimeout(); got != 2500*time.Millisecond {
		t.Errorf("expected 2.5s, got %s", got)
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
bird:
  socket_path: "/run/bird/bird.ctl"
  config_file: "/etc/bird/bird.conf"
kafka:
  brokers:
    - "localhost:9092"
poll:
  interval_seconds: 15
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeMinimalYAML(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bird.SocketPath != "/run/bird/bird.ctl" {
		t.Errorf("expected socket_path from file, got %q", cfg.Bird.SocketPath)
	}
	if cfg.Bird.ConfigFile != "/etc/bird/bird.conf" {
		t.Errorf("expected config_file from file, got %q", cfg.Bird.ConfigFile)
	}
	if cfg.Poll.IntervalSeconds != 15 {
		t.Errorf("expected interval 15, got %d", cfg.Poll.IntervalSeconds)
	}
	if cfg.Bird.BirdCmd != "birdc" {
		t.Errorf("expected default bird_cmd 'birdc', got %q", cfg.Bird.BirdCmd)
	}
	if !cfg.Poll.Detail {
		t.Error("expected default poll.detail=true")
	}
}

func TestLoad_EnvOverrideSocket(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BIRD_COLLECTOR_BIRD__SOCKET_PATH", "/tmp/bird6.ctl")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bird.SocketPath != "/tmp/bird6.ctl" {
		t.Errorf("expected socket_path from env, got %q", cfg.Bird.SocketPath)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BIRD_COLLECTOR_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvBrokersCommaSeparated(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BIRD_COLLECTOR_KAFKA__BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("expected two brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_EnvEmptySocketFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BIRD_COLLECTOR_BIRD__SOCKET_PATH", "")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for empty socket_path via env")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestBuildSASLMechanism(t *testing.T) {
	k := KafkaConfig{}
	if k.BuildSASLMechanism() != nil {
		t.Error("expected nil mechanism when SASL is disabled")
	}
	k.SASL = SASLConfig{Enabled: true, Mechanism: "plain", Username: "u", Password: "p"}
	m := k.BuildSASLMechanism()
	if m == nil {
		t.Fatal("expected PLAIN mechanism")
	}
	if m.Name() != "PLAIN" {
		t.Errorf("expected mechanism PLAIN, got %s", m.Name())
	}
}
