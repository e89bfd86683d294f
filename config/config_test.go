package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forever-free1/kvs/storage/bitcask"
	"github.com/forever-free1/kvs/storage/index"
	"github.com/hashicorp/go-hclog"
)

func TestLoadDefaults(t *testing.T) {
	if _, err := Load("/nonexistent/path/kvs.yaml"); err == nil {
		t.Fatal("不存在的配置文件应返回错误")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("空路径应返回默认配置: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:4000" {
		t.Errorf("默认地址: got %s", cfg.Server.Addr)
	}
	if cfg.Server.Engine != "kvs" {
		t.Errorf("默认引擎: got %s", cfg.Server.Engine)
	}
	if cfg.Storage.CompactionThreshold != 1024 {
		t.Errorf("默认压缩阈值: got %d", cfg.Storage.CompactionThreshold)
	}
	if cfg.Storage.IndexType != "art" {
		t.Errorf("默认索引类型: got %s", cfg.Storage.IndexType)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kvs.yaml")
	content := `
server:
  addr: ":9000"
storage:
  dir: "/var/lib/kvs"
  compaction_threshold: 64
  sync_writes: true
  compression: true
  index_type: btree
  bloom_filter_fp: 2
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr: got %s", cfg.Server.Addr)
	}
	if cfg.Server.Engine != "kvs" {
		t.Errorf("未配置的 engine 应使用默认值: got %s", cfg.Server.Engine)
	}
	if cfg.Storage.Dir != "/var/lib/kvs" || cfg.Storage.CompactionThreshold != 64 {
		t.Errorf("storage: got %+v", cfg.Storage)
	}
	if !cfg.Storage.SyncWrites || !cfg.Storage.Compression {
		t.Errorf("sync_writes/compression 应为 true: %+v", cfg.Storage)
	}
	if cfg.Storage.IndexType != "btree" {
		t.Errorf("index_type: got %s", cfg.Storage.IndexType)
	}
	// 非法的误判率回退到默认值
	if cfg.Storage.BloomFilterFP != DefaultBloomFilterFP {
		t.Errorf("bloom_filter_fp: got %v", cfg.Storage.BloomFilterFP)
	}
	if cfg.Storage.ReaderCacheSize != DefaultReaderCacheSize {
		t.Errorf("reader_cache_size: got %d", cfg.Storage.ReaderCacheSize)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level: got %s", cfg.Log.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"未知引擎":   "server:\n  engine: sled\n",
		"未知索引类型": "storage:\n  index_type: hash\n",
		"非法 YAML": "server: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "kvs.yaml")
			os.WriteFile(path, []byte(content), 0644)
			if _, err := Load(path); err == nil {
				t.Errorf("期望返回错误")
			}
		})
	}
}

func TestStorageOptions(t *testing.T) {
	cfg := Default()
	cfg.Storage.CompactionThreshold = 7
	cfg.Storage.Compression = true
	cfg.Storage.IndexType = "btree"

	opts, err := cfg.Storage.Options()
	if err != nil {
		t.Fatalf("转换配置失败: %v", err)
	}
	o := bitcask.DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.CompactionThreshold != 7 || !o.Compression || o.IndexType != index.TypeBTree {
		t.Errorf("unexpected options: %+v", o)
	}
	if o.ReaderCacheSize != DefaultReaderCacheSize || o.BloomFilterFP != DefaultBloomFilterFP {
		t.Errorf("unexpected defaults: %+v", o)
	}

	cfg.Storage.IndexType = "hash"
	if _, err := cfg.Storage.Options(); err == nil {
		t.Error("未知索引类型应返回错误")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  hclog.Level
	}{
		{"debug", hclog.Debug},
		{"WARN", hclog.Warn},
		{"bogus", hclog.Info},
	}
	for _, tt := range tests {
		l := (&LogConfig{Level: tt.level}).NewLogger("kvs-server")
		if l.GetLevel() != tt.want {
			t.Errorf("level %q: got %v, want %v", tt.level, l.GetLevel(), tt.want)
		}
		if l.Name() != "kvs-server" {
			t.Errorf("unexpected logger name %q", l.Name())
		}
	}
}
