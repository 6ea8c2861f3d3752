package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
)

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type HTTPConfig struct {
	BasePath        string   `mapstructure:"base_path" validate:"startswith=/"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
	RateBurst       int      `mapstructure:"rate_burst"`
}

type WSConfig struct {
	Path             string        `mapstructure:"path" validate:"startswith=/"`
	PingInterval     time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	PongWait         time.Duration `mapstructure:"pong_wait" validate:"gtfield=PingInterval"`
	WriteDeadline    time.Duration `mapstructure:"write_deadline" validate:"gt=0"`
	MaxMessageSize   int64         `mapstructure:"max_message_size" validate:"gt=0"`
	SendBuffer       int           `mapstructure:"send_buffer" validate:"gt=0"`
	InvokeRatePerSec int           `mapstructure:"invoke_rate_per_sec"`
}

// RedisConfig enables the cross-instance relay when Addr is set.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Channel     string        `mapstructure:"channel"`
	Prefix      string        `mapstructure:"prefix"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

// KafkaConfig enables the event stream when Brokers is set. An empty TopicInbound disables ingestion.
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	TopicEvents  string   `mapstructure:"topic_events"`
	TopicInbound string   `mapstructure:"topic_inbound"`
	GroupID      string   `mapstructure:"group_id"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

type ClientConfig struct {
	HubURL       string        `mapstructure:"hub_url"`
	APIURL       string        `mapstructure:"api_url"`
	UserID       string        `mapstructure:"user_id"`
	MaxRetries   int           `mapstructure:"max_retries" validate:"min=0"`
	BaseInterval time.Duration `mapstructure:"base_interval" validate:"gt=0"`
	MaxDelay     time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseInterval"`
	MaxJitter    time.Duration `mapstructure:"max_jitter" validate:"min=0"`
}

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Log     LogConfig     `mapstructure:"log"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	WS      WSConfig      `mapstructure:"ws"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Client  ClientConfig  `mapstructure:"client"`
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.App.Port) }

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "notification-hub")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 5000)
	v.SetDefault("app.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("http.base_path", "/api")
	v.SetDefault("http.cors_origins", []string{"http://localhost:4200"})
	v.SetDefault("http.rate_limit_per_min", 600)
	v.SetDefault("http.rate_burst", 20)

	v.SetDefault("ws.path", "/hub")
	v.SetDefault("ws.ping_interval", 30*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.write_deadline", 10*time.Second)
	v.SetDefault("ws.max_message_size", 64*1024)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.invoke_rate_per_sec", 20)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "notify:deliveries")
	v.SetDefault("redis.prefix", "notify")
	v.SetDefault("redis.presence_ttl", 24*time.Hour)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_events", "notification.events")
	v.SetDefault("kafka.topic_inbound", "")
	v.SetDefault("kafka.group_id", "notification-hub")

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.open_timeout", 30*time.Second)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("client.hub_url", "ws://localhost:5000/hub")
	v.SetDefault("client.api_url", "http://localhost:5000/api")
	v.SetDefault("client.user_id", "")
	v.SetDefault("client.max_retries", 5)
	v.SetDefault("client.base_interval", 2*time.Second)
	v.SetDefault("client.max_delay", 30*time.Second)
	v.SetDefault("client.max_jitter", time.Second)
}

// Load reads defaults, then the optional YAML file at path, then NOTIFY_* environment
// variables (NOTIFY_WS_PING_INTERVAL overrides ws.ping_interval).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.HTTP.CORSOrigins = splitList(c.HTTP.CORSOrigins)
	c.Kafka.Brokers = splitList(c.Kafka.Brokers)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = newValidator()

// newValidator reports fields by their config key instead of the Go field name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("config: %v: %w", err, apperr.ErrInvalidArgument)
	}
	problems := make([]string, 0, len(ve))
	for _, fe := range ve {
		// drop the root type name: Config.ws.pong_wait -> ws.pong_wait
		_, key, _ := strings.Cut(fe.Namespace(), ".")
		problems = append(problems, fmt.Sprintf("%s %s", key, describe(fe)))
	}
	return fmt.Errorf("config: %s: %w", strings.Join(problems, "; "), apperr.ErrInvalidArgument)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gtfield":
		return fmt.Sprintf("must be greater than %s (got %v)", fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Sprintf("must be at least %s (got %v)", fe.Param(), fe.Value())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "gt":
		return fmt.Sprintf("must be positive (got %v)", fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s (got %v)", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be at most %s (got %v)", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("fails %s=%s (got %v)", fe.Tag(), fe.Param(), fe.Value())
	}
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
