package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App            AppSettings            `mapstructure:"app"`
	Postgres       PostgresSettings       `mapstructure:"postgres"`
	Redis          RedisSettings          `mapstructure:"redis"`
	Kafka          KafkaSettings          `mapstructure:"kafka"`
	JWT            JWTSettings            `mapstructure:"jwt"`
	Telemetry      TelemetrySettings      `mapstructure:"telemetry"`
	Camunda        CamundaSettings        `mapstructure:"camunda"`
	RoleAssignment RoleAssignmentSettings `mapstructure:"role_assignment"`
	Tasks          TaskSettings           `mapstructure:"tasks"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	LockWaitLimit     time.Duration `mapstructure:"lock_wait_limit"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	DB                int    `mapstructure:"db"`
	Password          string `mapstructure:"password"`
	TLSEnabled        bool   `mapstructure:"tls_enabled"`
	FeatureFlagPrefix string `mapstructure:"feature_flag_prefix"`
}

// KafkaSettings configures the task event producer and the case role change consumer
type KafkaSettings struct {
	Brokers             []string `mapstructure:"brokers"`
	TopicPrefix         string   `mapstructure:"topic_prefix"`
	Async               bool     `mapstructure:"async"`
	ConsumerEnabled     bool     `mapstructure:"consumer_enabled"`
	ConsumerGroup       string   `mapstructure:"consumer_group"`
	CaseRolesTopic      string   `mapstructure:"case_roles_topic"`
	ConsumerStartOldest bool     `mapstructure:"consumer_start_oldest"`
}

type JWTSettings struct {
	KeyDirectory string `mapstructure:"key_directory"`
	Issuer       string `mapstructure:"issuer"`
	Audience     string `mapstructure:"audience"`
}

type TelemetrySettings struct {
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
}

// CamundaSettings points at the workflow engine REST API
type CamundaSettings struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TenantID string        `mapstructure:"tenant_id"`
}

// RoleAssignmentSettings points at the role assignment service
type RoleAssignmentSettings struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TaskSettings tunes task coordination behaviour
type TaskSettings struct {
	LocalStateFirstDefault bool     `mapstructure:"local_state_first_default"`
	RoleHierarchy          []string `mapstructure:"role_hierarchy"`
}

// Hierarchy parses "senior=junior" pairs into an adjacency map. Malformed entries are skipped.
func (t TaskSettings) Hierarchy() map[string][]string {
	out := make(map[string][]string)
	for _, entry := range t.RoleHierarchy {
		senior, junior, ok := strings.Cut(entry, "=")
		senior, junior = strings.TrimSpace(senior), strings.TrimSpace(junior)
		if !ok || senior == "" || junior == "" {
			continue
		}
		out[senior] = append(out[senior], junior)
	}
	return out
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("WA")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.lock_wait_limit",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.feature_flag_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"kafka.consumer_enabled",
		"kafka.consumer_group",
		"kafka.case_roles_topic",
		"kafka.consumer_start_oldest",
		"jwt.key_directory",
		"jwt.issuer",
		"jwt.audience",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"telemetry.tracing_enabled",
		"camunda.base_url",
		"camunda.timeout",
		"camunda.tenant_id",
		"role_assignment.base_url",
		"role_assignment.timeout",
		"tasks.local_state_first_default",
		"tasks.role_hierarchy",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "wa-task-management-api")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8087)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "wa_user")
	v.SetDefault("postgres.password", "wa_password")
	v.SetDefault("postgres.database", "cft_task_db")
	v.SetDefault("postgres.schema", "cft_task_db")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.lock_wait_limit", "5s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.feature_flag_prefix", "wa:feature_flags")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "wa")
	v.SetDefault("kafka.async", true)
	v.SetDefault("kafka.consumer_enabled", false)
	v.SetDefault("kafka.consumer_group", "wa-task-management-api")
	v.SetDefault("kafka.case_roles_topic", "wa.case.roles.changed")
	v.SetDefault("kafka.consumer_start_oldest", false)

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.audience", "")

	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "wa-task-management-api")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("telemetry.tracing_enabled", false)

	v.SetDefault("camunda.base_url", "http://localhost:8080/engine-rest")
	v.SetDefault("camunda.timeout", "10s")
	v.SetDefault("camunda.tenant_id", "")

	v.SetDefault("role_assignment.base_url", "http://localhost:4096")
	v.SetDefault("role_assignment.timeout", "10s")

	v.SetDefault("tasks.local_state_first_default", true)
	v.SetDefault("tasks.role_hierarchy", []string{"senior-tribunal-caseworker=tribunal-caseworker"})
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "WA_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
