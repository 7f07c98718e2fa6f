package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"live-digest/pkg/mongodb"
)

type LogConfig struct {
	Level       string `yaml:"level"`       // debug|info|warn|error
	Development bool   `yaml:"development"` // true: zap.NewDevelopment 风格
}

type ExtractorConfig struct {
	BaseURL     string        `yaml:"baseURL"` // 兼容 OpenAI 的 chat/completions 地址前缀
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`     // 单次请求超时
	MaxAttempts int           `yaml:"maxAttempts"` // 1 = 不重试
	RetryBase   time.Duration `yaml:"retryBase"`   // 重试间隔 base * 2^(n-1)
	MinInterval time.Duration `yaml:"minInterval"` // 两次调用的最小间隔，0 不限速
}

type SQLiteConfig struct {
	Path   string `yaml:"path"`
	Prefix string `yaml:"prefix"`
}

type StoreConfig struct {
	Backend     string              `yaml:"backend"` // file|sqlite|mongo
	Dir         string              `yaml:"dir"`
	LockTimeout time.Duration       `yaml:"lockTimeout"`
	SQLite      SQLiteConfig        `yaml:"sqlite"`
	Mongo       mongodb.MongoConfig `yaml:"mongo"`
}

type IngestConfig struct {
	// 抽取前先在所有分片里查 weibo_id，命中则跳过
	GlobalDedup bool `yaml:"globalDedup"`
}

type RenderConfig struct {
	OutputDir      string `yaml:"outputDir"`
	Title          string `yaml:"title"`
	IndexOrder     string `yaml:"indexOrder"`     // asc|desc
	AggregateOrder string `yaml:"aggregateOrder"` // asc|desc
	Current        string `yaml:"current"`        // aggregate|index
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type SchedulerConfig struct {
	Enabled bool  `yaml:"enabled"`
	Anchors []int `yaml:"anchors"` // 每天这些整点重新渲染
}

type CollectConfig struct {
	Topic     string   `yaml:"topic"`
	Cities    []string `yaml:"cities"`
	URLPrefix string   `yaml:"urlPrefix"`
}

type Config struct {
	TimeZone  string          `yaml:"timezone"`
	Log       LogConfig       `yaml:"log"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Render    RenderConfig    `yaml:"render"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Collect   CollectConfig   `yaml:"collect"`
}

// Default 不读配置文件时的默认值
func Default() *Config {
	return &Config{
		TimeZone: "Asia/Shanghai",
		Log:      LogConfig{Level: "info", Development: true},
		Extractor: ExtractorConfig{
			BaseURL:     "https://qianfan.baidubce.com/v2",
			Model:       "ernie-4.0-8k",
			Timeout:     60 * time.Second,
			MaxAttempts: 1,
			RetryBase:   15 * time.Second,
		},
		Store: StoreConfig{
			Backend:     "file",
			Dir:         "database/shards",
			LockTimeout: 10 * time.Second,
			SQLite:      SQLiteConfig{Path: "database/live.db", Prefix: "live_"},
			Mongo: mongodb.MongoConfig{
				Host:             "127.0.0.1:27017",
				DBName:           "live_digest",
				AuthSource:       "admin",
				CollectionPrefix: "live_",
				EnsureIndexes:    true,
			},
		},
		Render: RenderConfig{
			OutputDir:      "public",
			Title:          "Live 演出情报",
			IndexOrder:     "desc",
			AggregateOrder: "asc",
			Current:        "aggregate",
		},
		Server:    ServerConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{Anchors: []int{0, 6, 12, 18}},
		Collect: CollectConfig{
			Topic:     "#live演出情报",
			Cities:    []string{"上海"},
			URLPrefix: "https://weibo.cn/comment/",
		},
	}
}

// LoadConfig 在默认值之上覆盖 YAML；apiKey 为空时读 LLM_API_KEY
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Extractor.APIKey == "" {
		cfg.Extractor.APIKey = os.Getenv("LLM_API_KEY")
	}
	return cfg, nil
}
