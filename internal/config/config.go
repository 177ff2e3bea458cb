package config

import (
	"log"
	"os"
	"time"

	"mailtriage/pkg/config"
)

type LLMConfig struct {
	// http 或 openai
	Provider string        `yaml:"provider"`
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type PromptConfig struct {
	Variant      string `yaml:"variant"`
	TemplatePath string `yaml:"template_path"`
	MaxTokens    int    `yaml:"max_tokens"`
}

type StorageConfig struct {
	OutputBucket string `yaml:"output_bucket"`
}

type PipelineConfig struct {
	Concurrency int           `yaml:"concurrency"`
	UnitTimeout time.Duration `yaml:"unit_timeout"`
}

type TelegramConfig struct {
	APIBase  string        `yaml:"api_base"`
	BotToken string        `yaml:"bot_token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// OutboundConfig 选择路由决策的投递方式
type OutboundConfig struct {
	// direct 直接发布到 MQ；outbox 先写 outbox_events 再由 dispatcher 发布
	Mode             string        `yaml:"mode"`
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	BatchSize        int           `yaml:"batch_size"`
	MaxRetries       int           `yaml:"max_retries"`

	// 启动时把 failed 事件重置为 pending
	ReplayFailedOnStart bool `yaml:"replay_failed_on_start"`
}

type VisitorConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	UserTTL  time.Duration `yaml:"user_ttl"`
	RetryTTL time.Duration `yaml:"retry_ttl"`
}

type Config struct {
	DB       config.DBConfig     `yaml:"db"`
	MQ       config.MQConfig     `yaml:"mq"`
	Redis    config.RedisConfig  `yaml:"redis"`
	Mongo    config.MongoConfig  `yaml:"mongo"`
	Server   config.ServerConfig `yaml:"server"`
	LLM      LLMConfig           `yaml:"llm"`
	Prompt   PromptConfig        `yaml:"prompt"`
	Storage  StorageConfig       `yaml:"storage"`
	Pipeline PipelineConfig      `yaml:"pipeline"`
	Outbound OutboundConfig      `yaml:"outbound"`
	Telegram TelegramConfig      `yaml:"telegram"`
	Visitor  VisitorConfig       `yaml:"visitor"`
	Cache    CacheConfig         `yaml:"cache"`
}

// Load 使用统一配置中心加载配置，失败时退出进程
func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfg, err := LoadFrom(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom merges base.yaml with <env>.yaml from configDir, then applies
// environment overrides.
func LoadFrom(env, configDir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := config.Decode(cfgMap, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMongoFromEnv(&cfg.Mongo)
	config.OverrideServerFromEnv(&cfg.Server)
	overrideFromEnv(&cfg)

	return &cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if url := os.Getenv("LLM_URL"); url != "" {
		cfg.LLM.URL = url
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.BotToken = token
	}
}
