package bitcask

import (
	"errors"
	"fmt"
	"os"

	"github.com/forever-free1/kvs/storage"
	"github.com/forever-free1/kvs/storage/index"
	"github.com/hashicorp/go-hclog"
)

// DefaultCompactionThreshold 默认压缩阈值
// 自上次压缩以来的写入次数超过该值时触发一次同步压缩
const DefaultCompactionThreshold = 1024

// DB 表示 Bitcask 存储引擎的核心结构体
// 封装了段文件管理、内存索引和配置选项
//
// 每次 Set/Remove 都写入一个全新的段文件，即一个段只包含一条 Entry。
// DB 不是并发安全的，多 goroutine 访问需使用 storage.NewLockedEngine 包装
type DB struct {
	dir           string              // 存储目录
	index         index.Index         // 内存索引：key -> 最新 Set 的位置
	bloomFilter   *index.BloomFilter  // 布隆过滤器，用于快速判断 key 一定不存在
	readers       *ReaderCache        // 历史段读句柄缓存
	writer        *SegmentWriter      // 段写入器
	options       *Options            // 配置选项
	logger        hclog.Logger        // 日志
	nextSegmentID uint64              // 下一次写入使用的段 ID
	segments      int                 // 磁盘上的段数量
	pendingWrites int                 // 自上次压缩以来的写入次数
	compactions   uint64              // 成功完成的压缩次数
	closed        bool                // 是否已关闭
	removeFile    func(string) error // 删除段文件，测试中可替换
}

// Options 定义 DB 的配置选项
type Options struct {
	// CompactionThreshold 写入次数超过该值时触发压缩
	CompactionThreshold int

	// SyncWrites 每次写入后是否 fsync
	// 关闭时只保证数据已刷到操作系统
	SyncWrites bool

	// Compression 是否使用 snappy 压缩 Entry 的 Payload
	Compression bool

	// IndexType 索引类型，默认使用 ART
	IndexType index.Type

	// BloomFilterCapacity 布隆过滤器的预期元素数量
	BloomFilterCapacity uint

	// BloomFilterFP 布隆过滤器的期望误判率
	// 值越小，需要的内存越多
	BloomFilterFP float64

	// ReaderCacheSize 最多同时打开的历史段读句柄数量
	ReaderCacheSize int

	// Logger 日志，默认不输出
	Logger hclog.Logger

	// Observer 压缩结果观察者，可为 nil
	Observer Observer
}

// Option 定义 Options 的配置函数
type Option func(*Options)

// WithCompactionThreshold 设置压缩阈值
func WithCompactionThreshold(n int) Option {
	return func(o *Options) {
		o.CompactionThreshold = n
	}
}

// WithSyncWrites 设置是否每次写入后 fsync
func WithSyncWrites(sync bool) Option {
	return func(o *Options) {
		o.SyncWrites = sync
	}
}

// WithCompression 设置是否压缩 Payload
func WithCompression(compress bool) Option {
	return func(o *Options) {
		o.Compression = compress
	}
}

// WithIndexType 设置索引类型
func WithIndexType(t index.Type) Option {
	return func(o *Options) {
		o.IndexType = t
	}
}

// WithBloomFilter 设置布隆过滤器的预期容量和误判率
func WithBloomFilter(capacity uint, fp float64) Option {
	return func(o *Options) {
		o.BloomFilterCapacity = capacity
		o.BloomFilterFP = fp
	}
}

// WithReaderCacheSize 设置读句柄缓存容量
func WithReaderCacheSize(n int) Option {
	return func(o *Options) {
		o.ReaderCacheSize = n
	}
}

// WithLogger 设置日志
func WithLogger(logger hclog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithObserver 设置压缩观察者
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		o.Observer = obs
	}
}

// DefaultOptions 返回默认配置
func DefaultOptions() *Options {
	return &Options{
		CompactionThreshold: DefaultCompactionThreshold,
		SyncWrites:          false,
		Compression:         false,
		IndexType:           index.TypeART, // 默认使用 ART 索引
		BloomFilterCapacity: 1000000,       // 预估最多存储 100 万个 key
		BloomFilterFP:       0.01,          // 默认 1% 误判率
		ReaderCacheSize:     DefaultReaderCacheSize,
	}
}

// Open 打开或创建一个数据库
// 段文件保存在 path 下的 StoreDirName 子目录中，path 中的其他文件不受影响
// 参数：
//   - path: 数据库路径，不存在时创建
//   - opts: 配置选项
//
// 返回：
//   - *DB: 数据库指针
//   - error: 打开错误，路径为空或无法创建目录时包含 storage.ErrIO
func Open(path string, opts ...Option) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: 数据库路径不能为空", storage.ErrIO)
	}

	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.CompactionThreshold <= 0 {
		options.CompactionThreshold = DefaultCompactionThreshold
	}
	if options.BloomFilterCapacity == 0 {
		options.BloomFilterCapacity = 1000000
	}
	if options.BloomFilterFP <= 0 || options.BloomFilterFP >= 1 {
		options.BloomFilterFP = 0.01
	}
	if options.Logger == nil {
		options.Logger = hclog.NewNullLogger()
	}

	// 确保段文件目录存在
	dir := StorePath(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: 创建存储目录失败: %w", storage.ErrIO, err)
	}

	readers, err := NewReaderCache(dir, options.ReaderCacheSize)
	if err != nil {
		return nil, err
	}

	db := &DB{
		dir:         dir,
		index:       index.New(options.IndexType),
		bloomFilter: index.NewBloomFilter(options.BloomFilterCapacity, options.BloomFilterFP),
		readers:     readers,
		writer:      NewSegmentWriter(dir, options.SyncWrites, options.Compression),
		options:     options,
		logger:      options.Logger,
		removeFile:  os.Remove,
	}

	if err := db.replay(); err != nil {
		readers.Close()
		return nil, fmt.Errorf("回放日志失败: %w", err)
	}

	return db, nil
}

// replay 按段 ID 升序回放所有段文件，重建索引
// Set 覆盖映射，Remove 删除映射，同一个 key 以最后一次写入为准
//
// 不需要"正常关闭"标记，日志本身就是唯一的事实来源，回放是幂等的
func (db *DB) replay() error {
	ids, err := ListSegments(db.dir)
	if err != nil {
		return err
	}

	for _, id := range ids {
		err := db.readers.Scan(id, func(e *Entry, pos *storage.Position) error {
			switch e.Kind {
			case KindSet:
				db.index.Put(e.Key, pos)
			case KindRemove:
				db.index.Delete(e.Key)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if len(ids) > 0 {
		db.nextSegmentID = ids[len(ids)-1] + 1
	}
	db.segments = len(ids)

	// 重建布隆过滤器：只包含回放后仍然存活的 key
	db.bloomFilter.Rebuild(db.index)

	db.logger.Info("日志回放完成",
		"dir", db.dir,
		"segments", len(ids),
		"keys", db.index.Size(),
		"next_segment", db.nextSegmentID)
	return nil
}

// Get 根据键获取值
// 参数：
//   - key: 键
//
// 返回：
//   - string: 值
//   - bool: 是否存在，不存在不是错误
//   - error: 读取错误
func (db *DB) Get(key string) (string, bool, error) {
	if db.closed {
		return "", false, storage.ErrClosed
	}

	// 布隆过滤器返回 false，一定不存在
	if !db.bloomFilter.Test(key) {
		return "", false, nil
	}

	// 可能存在，继续查询索引（布隆过滤器可能误判，删除后的 key 也仍会命中）
	pos := db.index.Get(key)
	if pos == nil {
		return "", false, nil
	}

	entry, err := db.readers.Read(pos)
	if err != nil {
		return "", false, fmt.Errorf("读取键 %q 失败: %w", key, err)
	}

	// 索引永远不应指向 Remove 记录或其他 key 的记录
	if entry.IsRemove() || entry.Key != key {
		return "", false, fmt.Errorf("%w: 键 %q 的位置 %s 指向 %s", storage.ErrIndexCorrupted, key, pos, entry)
	}

	return entry.Value, true, nil
}

// Set 写入键值对
// 参数：
//   - key: 键
//   - value: 值
//
// 返回：
//   - error: 写入错误，失败时索引不变
func (db *DB) Set(key string, value string) error {
	if db.closed {
		return storage.ErrClosed
	}

	pos, err := db.appendEntry(NewSetEntry(key, value))
	if err != nil {
		return err
	}

	// 更新内存索引
	db.index.Put(key, pos)
	db.bloomFilter.Add(key)

	db.afterWrite()
	return nil
}

// Remove 删除键
// 参数：
//   - key: 键
//
// 返回：
//   - error: 键不存在返回 storage.ErrKeyNotFound
func (db *DB) Remove(key string) error {
	if db.closed {
		return storage.ErrClosed
	}

	_, ok, err := db.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrKeyNotFound
	}

	if _, err := db.appendEntry(NewRemoveEntry(key)); err != nil {
		return err
	}

	// 删除映射而不是写入位置，保证索引永远不指向 Remove 记录
	db.index.Delete(key)

	db.afterWrite()
	return nil
}

// appendEntry 切换到一个全新的段并写入 e
// 段 ID 无论成功与否都会递增，失败的段 ID 不会被复用
func (db *DB) appendEntry(e *Entry) (*storage.Position, error) {
	id := db.nextSegmentID
	db.nextSegmentID++

	if err := db.writer.RollTo(id); err != nil {
		return nil, fmt.Errorf("切换到段 %d 失败: %w", id, err)
	}
	db.segments++

	pos, err := db.writer.Append(e)
	if err != nil {
		// 清理写了一半的段，避免下次回放时把它当作损坏数据
		if derr := db.writer.Discard(); derr != nil {
			db.logger.Warn("清理失败的段文件失败", "segment", id, "error", derr)
		} else {
			db.segments--
		}
		return nil, fmt.Errorf("追加写入段 %d 失败: %w", id, err)
	}
	return pos, nil
}

// afterWrite 增加压缩计数，超过阈值时同步压缩
// 压缩失败不影响本次写入的结果，计数保持在阈值之上，下次写入会重试
func (db *DB) afterWrite() {
	db.pendingWrites++
	if db.pendingWrites <= db.options.CompactionThreshold {
		return
	}
	if err := db.Compact(); err != nil {
		db.logger.Warn("压缩失败，将在下次写入时重试", "pending_writes", db.pendingWrites, "error", err)
	}
}

// Stats 返回引擎状态快照
func (db *DB) Stats() storage.Stats {
	return storage.Stats{
		Keys:          db.index.Size(),
		Segments:      db.segments,
		NextSegmentID: db.nextSegmentID,
		PendingWrites: db.pendingWrites,
		Compactions:   db.compactions,
	}
}

// Dir 返回段文件所在目录，即 StorePath(path)
func (db *DB) Dir() string {
	return db.dir
}

// Close 关闭数据库
// 返回：
//   - error: 关闭错误
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true

	var errs []error
	if err := db.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("关闭写入器失败: %w", err))
	}
	if err := db.readers.Close(); err != nil {
		errs = append(errs, fmt.Errorf("关闭读句柄失败: %w", err))
	}
	db.index.Close()

	return errors.Join(errs...)
}

// 确保 DB 实现了 storage.Engine 接口
var _ storage.Engine = (*DB)(nil)
var _ storage.StatsProvider = (*DB)(nil)
