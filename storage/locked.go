package storage

import "sync"

// LockedEngine 用一把互斥锁包装任意 Engine
// 底层引擎的 Get 也会修改读句柄缓存，因此读写共用同一把锁
type LockedEngine struct {
	mu     sync.Mutex
	engine Engine
}

// NewLockedEngine 创建并发安全的 Engine 包装
func NewLockedEngine(engine Engine) *LockedEngine {
	return &LockedEngine{engine: engine}
}

// Get 加锁后读取
func (l *LockedEngine) Get(key string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Get(key)
}

// Set 加锁后写入
func (l *LockedEngine) Set(key string, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Set(key, value)
}

// Remove 加锁后删除
func (l *LockedEngine) Remove(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Remove(key)
}

// Close 加锁后关闭
func (l *LockedEngine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Close()
}

// Stats 加锁后读取底层引擎状态，底层不支持时返回零值
func (l *LockedEngine) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sp, ok := l.engine.(StatsProvider); ok {
		return sp.Stats()
	}
	return Stats{}
}

// 确保 LockedEngine 实现了 Engine 接口
var _ Engine = (*LockedEngine)(nil)
var _ StatsProvider = (*LockedEngine)(nil)
