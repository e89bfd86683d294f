package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	apihttp "github.com/forever-free1/kvs/api/http"
	"github.com/forever-free1/kvs/client"
	"github.com/forever-free1/kvs/config"
	"github.com/forever-free1/kvs/metrics"
	"github.com/forever-free1/kvs/storage"
	"github.com/forever-free1/kvs/storage/bitcask"
	"github.com/forever-free1/kvs/watch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, client.MsgError+"\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML 配置文件路径")
	addr := flag.String("addr", "", "监听地址，覆盖配置文件 (默认 "+config.DefaultAddr+")")
	engineName := flag.String("engine", "", "存储引擎，只支持 kvs")
	dir := flag.String("dir", "", "存储目录，覆盖配置文件 (默认当前目录)")
	logLevel := flag.String("log-level", "", "日志级别，覆盖配置文件")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// 命令行参数优先于配置文件
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *engineName != "" {
		cfg.Server.Engine = *engineName
	}
	if *dir != "" {
		cfg.Storage.Dir = *dir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if cfg.Storage.Dir == "" {
		if cfg.Storage.Dir, err = os.Getwd(); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.Log.NewLogger("kvs-server")
	logger.Info("启动",
		"version", version,
		"engine", cfg.Server.Engine,
		"addr", cfg.Server.Addr,
		"dir", cfg.Storage.Dir)

	opts, err := cfg.Storage.Options()
	if err != nil {
		return err
	}
	collector := metrics.New()
	opts = append(opts,
		bitcask.WithLogger(logger.Named("bitcask")),
		bitcask.WithObserver(collector))

	db, err := bitcask.Open(cfg.Storage.Dir, opts...)
	if err != nil {
		return err
	}
	engine := storage.NewLockedEngine(collector.Instrument(db))
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("关闭存储引擎失败", "error", err)
		}
	}()

	hub := watch.NewHub()
	defer hub.Close()

	server := apihttp.NewServer(cfg.Server.Addr, engine, hub,
		apihttp.WithMetrics(collector.Handler()),
		apihttp.WithLogger(logger.Named("http")))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("收到退出信号", "signal", sig)
	}

	// SSE 连接不会自行结束，先关闭 hub 让它们退出
	hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// version 通过 -ldflags "-X main.version=..." 注入
var version = "dev"
