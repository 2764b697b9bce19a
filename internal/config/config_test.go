package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
ami:
  host: 192.168.1.200
  port: 5038
  username: admin
  secret: s3cret
mqtt:
  broker: tcp://localhost:1883
  client_id: test
  topic_prefix: pbx
postgres:
  dsn: postgres://cc:cc@localhost:5432/cc
redis:
  addr: localhost:6379
http:
  addr: 0.0.0.0:9090
engine:
  grace_period: 2m
  queue_names:
    "100": Support
    "200": Sales
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AMI.Host != "192.168.1.200" {
		t.Errorf("expected host=192.168.1.200, got %s", cfg.AMI.Host)
	}
	if cfg.AMI.Addr() != "192.168.1.200:5038" {
		t.Errorf("expected addr=192.168.1.200:5038, got %s", cfg.AMI.Addr())
	}
	if cfg.MQTT.TopicPrefix != "pbx" {
		t.Errorf("expected topic_prefix=pbx, got %s", cfg.MQTT.TopicPrefix)
	}
	if cfg.Engine.GracePeriod != 2*time.Minute {
		t.Errorf("expected grace_period=2m, got %v", cfg.Engine.GracePeriod)
	}
	if cfg.Engine.QueueNames["100"] != "Support" {
		t.Errorf("expected queue 100 named Support, got %q", cfg.Engine.QueueNames["100"])
	}
	if cfg.HTTP.Addr != "0.0.0.0:9090" {
		t.Errorf("expected http addr override, got %s", cfg.HTTP.Addr)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
ami:
  username: admin
  secret: s3cret
postgres:
  dsn: postgres://cc:cc@localhost:5432/cc
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AMI.Host != "127.0.0.1" {
		t.Errorf("expected default host=127.0.0.1, got %s", cfg.AMI.Host)
	}
	if cfg.AMI.Port != 5038 {
		t.Errorf("expected default port=5038, got %d", cfg.AMI.Port)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("expected default broker, got %s", cfg.MQTT.Broker)
	}
	if cfg.MQTT.ClientID != "callcenterd" {
		t.Errorf("expected default client_id, got %s", cfg.MQTT.ClientID)
	}
	if cfg.Engine.GracePeriod != 5*time.Minute {
		t.Errorf("expected default grace_period=5m, got %v", cfg.Engine.GracePeriod)
	}
	if cfg.Engine.QueuePollInterval != 2*time.Second {
		t.Errorf("expected default queue_poll_interval=2s, got %v", cfg.Engine.QueuePollInterval)
	}
	if cfg.Engine.EndpointPollInterval != 5*time.Second {
		t.Errorf("expected default endpoint_poll_interval=5s, got %v", cfg.Engine.EndpointPollInterval)
	}
	if cfg.Engine.RecordingDir != "/var/spool/asterisk/monitor" {
		t.Errorf("expected default recording_dir, got %s", cfg.Engine.RecordingDir)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("expected redis disabled by default, got %s", cfg.Redis.Addr)
	}
}

func TestSecretFromEnv(t *testing.T) {
	t.Setenv("AMI_SECRET", "envsecret")
	path := writeConfig(t, `
ami:
  username: admin
  secret: filesecret
postgres:
  dsn: postgres://cc:cc@localhost:5432/cc
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AMI.Secret != "envsecret" {
		t.Errorf("expected env secret to win, got %s", cfg.AMI.Secret)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, `{{{invalid`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		errMsg string
	}{
		{"empty username", `
ami:
  secret: s3cret
postgres:
  dsn: x
`, "ami.username is required"},
		{"empty secret", `
ami:
  username: admin
postgres:
  dsn: x
`, "ami.secret is required"},
		{"port zero", `
ami:
  port: 0
  username: admin
  secret: s3cret
postgres:
  dsn: x
`, "ami.port must be between 1 and 65535, got 0"},
		{"empty host", `
ami:
  host: ""
  username: admin
  secret: s3cret
postgres:
  dsn: x
`, "ami.host is required"},
		{"empty broker", `
ami:
  username: admin
  secret: s3cret
postgres:
  dsn: x
mqtt:
  broker: ""
`, "mqtt.broker is required"},
		{"missing dsn", `
ami:
  username: admin
  secret: s3cret
`, "postgres.dsn is required"},
		{"zero grace period", `
ami:
  username: admin
  secret: s3cret
postgres:
  dsn: x
engine:
  grace_period: -1s
`, "engine.grace_period must be positive, got -1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.config)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}
