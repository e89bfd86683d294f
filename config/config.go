package config

import (
	"fmt"
	"os"

	"github.com/forever-free1/kvs/storage/bitcask"
	"github.com/forever-free1/kvs/storage/index"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// Config 是 kvs-server 的完整配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr   string `yaml:"addr"`   // 监听地址
	Engine string `yaml:"engine"` // 存储引擎名称，目前只支持 kvs
}

// StorageConfig 存储引擎配置
type StorageConfig struct {
	Dir                 string  `yaml:"dir"`
	CompactionThreshold int     `yaml:"compaction_threshold"`
	SyncWrites          bool    `yaml:"sync_writes"`
	Compression         bool    `yaml:"compression"`
	IndexType           string  `yaml:"index_type"` // art 或 btree
	BloomFilterCapacity uint    `yaml:"bloom_filter_capacity"`
	BloomFilterFP       float64 `yaml:"bloom_filter_fp"`
	ReaderCacheSize     int     `yaml:"reader_cache_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // trace/debug/info/warn/error
	JSON  bool   `yaml:"json"`
}

// 默认值
const (
	DefaultAddr                = "127.0.0.1:4000"
	DefaultEngine              = "kvs"
	DefaultCompactionThreshold = 1024
	DefaultBloomFilterCapacity = 1000000
	DefaultBloomFilterFP       = 0.01
	DefaultReaderCacheSize     = 256
	DefaultLogLevel            = "info"
)

// Default 返回默认配置，存储目录为空表示使用当前目录
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:   DefaultAddr,
			Engine: DefaultEngine,
		},
		Storage: StorageConfig{
			CompactionThreshold: DefaultCompactionThreshold,
			IndexType:           "art",
			BloomFilterCapacity: DefaultBloomFilterCapacity,
			BloomFilterFP:       DefaultBloomFilterFP,
			ReaderCacheSize:     DefaultReaderCacheSize,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load 读取 YAML 配置文件，未出现的字段使用默认值
// path 为空时直接返回默认配置
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 检查配置是否合法
func (c *Config) Validate() error {
	if c.Server.Engine != DefaultEngine {
		return fmt.Errorf("不支持的存储引擎: %q", c.Server.Engine)
	}
	if _, err := index.ParseType(c.Storage.IndexType); err != nil {
		return err
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.Engine == "" {
		cfg.Server.Engine = DefaultEngine
	}
	if cfg.Storage.CompactionThreshold <= 0 {
		cfg.Storage.CompactionThreshold = DefaultCompactionThreshold
	}
	if cfg.Storage.BloomFilterCapacity == 0 {
		cfg.Storage.BloomFilterCapacity = DefaultBloomFilterCapacity
	}
	if cfg.Storage.BloomFilterFP <= 0 || cfg.Storage.BloomFilterFP >= 1 {
		cfg.Storage.BloomFilterFP = DefaultBloomFilterFP
	}
	if cfg.Storage.ReaderCacheSize <= 0 {
		cfg.Storage.ReaderCacheSize = DefaultReaderCacheSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// Options 把存储配置转换为 bitcask 的配置函数
func (s *StorageConfig) Options() ([]bitcask.Option, error) {
	indexType, err := index.ParseType(s.IndexType)
	if err != nil {
		return nil, err
	}
	return []bitcask.Option{
		bitcask.WithCompactionThreshold(s.CompactionThreshold),
		bitcask.WithSyncWrites(s.SyncWrites),
		bitcask.WithCompression(s.Compression),
		bitcask.WithIndexType(indexType),
		bitcask.WithBloomFilter(s.BloomFilterCapacity, s.BloomFilterFP),
		bitcask.WithReaderCacheSize(s.ReaderCacheSize),
	}, nil
}

// NewLogger 按日志配置创建命名 logger
// 无法识别的级别回退到 info
func (l *LogConfig) NewLogger(name string) hclog.Logger {
	level := hclog.LevelFromString(l.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		JSONFormat: l.JSON,
		Output:     os.Stderr,
	})
}
