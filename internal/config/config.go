package config

import (
	"fmt"
	"time"

	"jobtracker/pkg/config"
)

type FilterConfig struct {
	RulesPath    string `yaml:"rules_path"`
	OverridePath string `yaml:"override_path"`
}

type PipelineConfig struct {
	Concurrency int  `yaml:"concurrency"`
	Enrich      bool `yaml:"enrich"`
}

type ClassifierConfig struct {
	Retries   int           `yaml:"retries"`
	BaseDelay time.Duration `yaml:"base_delay"`
}

type ReaperConfig struct {
	Interval               time.Duration `yaml:"interval"`
	StaleAfter             time.Duration `yaml:"stale_after"`
	FalsePositiveRetention time.Duration `yaml:"false_positive_retention"`
}

type RenderConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MinTextLength     int           `yaml:"min_text_length"`
	UserAgent         string        `yaml:"user_agent"`
}

type WorkerConfig struct {
	Prefetch   int           `yaml:"prefetch"`
	DedupTTL   time.Duration `yaml:"dedup_ttl"`
	MaxRetries int           `yaml:"max_retries"`
}

// WebhookConfig 为空 token 时不注册 /webhook/email
type WebhookConfig struct {
	Token string `yaml:"token"`
}

type JWTConfig struct {
	config.JWTConfig `yaml:",inline"`
	TTL              time.Duration `yaml:"ttl"`
}

type Config struct {
	Server     config.ServerConfig  `yaml:"server"`
	DB         config.DBConfig      `yaml:"db"`
	MQ         config.MQConfig      `yaml:"mq"`
	Redis      config.RedisConfig   `yaml:"redis"`
	JWT        JWTConfig            `yaml:"jwt"`
	LLM        config.LLMConfig     `yaml:"llm"`
	Search     config.SearchConfig  `yaml:"search"`
	Mailbox    config.MailboxConfig `yaml:"mailbox"`
	Gmail      config.GmailConfig   `yaml:"gmail"`
	Filter     FilterConfig         `yaml:"filter"`
	Pipeline   PipelineConfig       `yaml:"pipeline"`
	Classifier ClassifierConfig     `yaml:"classifier"`
	Reaper     ReaperConfig         `yaml:"reaper"`
	Render     RenderConfig         `yaml:"render"`
	Worker     WorkerConfig         `yaml:"worker"`
	Webhook    WebhookConfig        `yaml:"webhook"`
}

// Load reads CONFIG_ENV / CONFIG_DIR, decodes the merged document and applies env overrides.
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := Defaults()
	if err := config.Decode(cfgMap, cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT.JWTConfig)
	config.OverrideLLMFromEnv(&cfg.LLM)
	config.OverrideSearchFromEnv(&cfg.Search)
	config.OverrideMailboxFromEnv(&cfg.Mailbox)
	config.OverrideGmailFromEnv(&cfg.Gmail)
	cfg.Webhook.Token = config.GetEnv("WEBHOOK_TOKEN", cfg.Webhook.Token)

	return cfg, nil
}

// Defaults 在配置文件缺省时使用
func Defaults() *Config {
	return &Config{
		Server:     config.ServerConfig{Port: "8080"},
		JWT:        JWTConfig{TTL: 24 * time.Hour},
		LLM:        config.LLMConfig{Timeout: time.Minute, RequestsPerSecond: 2},
		Mailbox:    config.MailboxConfig{Provider: "gmail", Mailbox: "INBOX"},
		Pipeline:   PipelineConfig{Concurrency: 4},
		Classifier: ClassifierConfig{Retries: 3, BaseDelay: 60 * time.Second},
		Reaper: ReaperConfig{
			Interval:               time.Minute,
			StaleAfter:             30 * time.Minute,
			FalsePositiveRetention: 180 * 24 * time.Hour,
		},
		Render: RenderConfig{Timeout: 30 * time.Second, RequestsPerSecond: 1, MinTextLength: 200},
		Worker: WorkerConfig{Prefetch: 1, DedupTTL: time.Hour, MaxRetries: 3},
	}
}
