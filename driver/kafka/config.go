// Package kafka implements the driver capability interfaces over sarama.
// The consumer emulates a blocking, wakeup-interruptible poll on top of a
// consumer group; the producer wraps a synchronous producer. Both register
// under the name "kafka".
package kafka

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/IBM/sarama"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Brokers   []string `koanf:"brokers"`
	GroupID   string   `koanf:"group_id"`
	ClientID  string   `koanf:"client_id"`
	StartFrom string   `koanf:"start_from"` // oldest|newest (default newest)
	Version   string   `koanf:"version"`
	TLSEn     bool     `koanf:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass"`

	// MaxPollRecords caps the batch one Poll returns.
	MaxPollRecords int `koanf:"max_poll_records"`

	// RequiredAcks is the producer ack level: 0, 1 or -1.
	RequiredAcks int16 `koanf:"required_acks"`
}

// LoadConfig merges YAML (if present) with env-vars
// (prefix `KANAL_KAFKA__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("kafka schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider("KANAL_KAFKA__", "__", nil), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(c *Config) {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.GroupID == "" {
		c.GroupID = "kanal"
	}
	if c.StartFrom == "" {
		c.StartFrom = "newest"
	}
	if c.MaxPollRecords <= 0 {
		c.MaxPollRecords = 500
	}
	if c.RequiredAcks != 0 && c.RequiredAcks != 1 && c.RequiredAcks != -1 {
		c.RequiredAcks = 1
	}
}

// saramaConfig translates Config into a client config shared by both sides.
func saramaConfig(cfg Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	if cfg.Version != "" {
		ver, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, err
		}
		sc.Version = ver
	}
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	if cfg.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = cfg.SASLUser, cfg.SASLPass
	}
	sc.Consumer.Return.Errors = true
	switch cfg.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	return sc, nil
}
