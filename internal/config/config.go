package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AMI      AMIConfig      `yaml:"ami"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Engine   EngineConfig   `yaml:"engine"`
}

type AMIConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Secret   string `yaml:"secret"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig is optional; an empty addr disables the snapshot store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HTTPConfig is optional; an empty addr disables the snapshot API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type EngineConfig struct {
	// GracePeriod is the delay between an agent going unreachable and the
	// shift session being closed.
	GracePeriod time.Duration `yaml:"grace_period"`

	// Poll intervals for the switch status actions.
	QueuePollInterval    time.Duration `yaml:"queue_poll_interval"`
	EndpointPollInterval time.Duration `yaml:"endpoint_poll_interval"`

	// RecordingDir is where MixMonitor writes call recordings,
	// as seen from the switch.
	RecordingDir string `yaml:"recording_dir"`

	// QueueNames maps switch queue ids to display names.
	QueueNames map[string]string `yaml:"queue_names"`
}

func (c *AMIConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		AMI: AMIConfig{
			Host: "127.0.0.1",
			Port: 5038,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "callcenterd",
			TopicPrefix: "callcenter",
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8080",
		},
		Engine: EngineConfig{
			GracePeriod:          5 * time.Minute,
			QueuePollInterval:    2 * time.Second,
			EndpointPollInterval: 5 * time.Second,
			RecordingDir:         "/var/spool/asterisk/monitor",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Env wins over file for secrets so they can stay out of the yaml.
	if v := os.Getenv("AMI_SECRET"); v != "" {
		cfg.AMI.Secret = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AMI.Host == "" {
		return fmt.Errorf("ami.host is required")
	}
	if c.AMI.Port < 1 || c.AMI.Port > 65535 {
		return fmt.Errorf("ami.port must be between 1 and 65535, got %d", c.AMI.Port)
	}
	if c.AMI.Username == "" {
		return fmt.Errorf("ami.username is required")
	}
	if c.AMI.Secret == "" {
		return fmt.Errorf("ami.secret is required")
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.MQTT.ClientID == "" {
		return fmt.Errorf("mqtt.client_id is required")
	}
	if c.MQTT.TopicPrefix == "" {
		return fmt.Errorf("mqtt.topic_prefix is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.Engine.GracePeriod <= 0 {
		return fmt.Errorf("engine.grace_period must be positive, got %v", c.Engine.GracePeriod)
	}
	if c.Engine.QueuePollInterval <= 0 {
		return fmt.Errorf("engine.queue_poll_interval must be positive, got %v", c.Engine.QueuePollInterval)
	}
	if c.Engine.EndpointPollInterval <= 0 {
		return fmt.Errorf("engine.endpoint_poll_interval must be positive, got %v", c.Engine.EndpointPollInterval)
	}
	if c.Engine.RecordingDir == "" {
		return fmt.Errorf("engine.recording_dir is required")
	}
	return nil
}
