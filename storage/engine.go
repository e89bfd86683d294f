package storage

import "fmt"

// Position 表示一条 Entry 在段文件中的位置
// 一个 Position 唯一对应段文件 SegmentID 中的一条序列化 Entry
type Position struct {
	SegmentID uint64 // 段文件 ID
	Offset    uint64 // Entry 起始偏移量
	Length    uint64 // Entry 编码后的字节长度
}

// End 返回 Entry 结束位置（不含）
func (p *Position) End() uint64 {
	return p.Offset + p.Length
}

// String 返回 Position 的可读描述
func (p *Position) String() string {
	return fmt.Sprintf("%d.log@%d+%d", p.SegmentID, p.Offset, p.Length)
}

// Engine 是存储引擎的抽象接口
// 实现了键值存储的基本操作：Set、Get、Remove、Close
//
// 注意：Engine 的实现不要求并发安全，多 goroutine 访问时使用 NewLockedEngine 包装
type Engine interface {
	// Get 根据键获取值
	// 参数：
	//   - key: 键
	// 返回：
	//   - string: 值
	//   - bool: 键是否存在，不存在不是错误
	//   - error: 读取错误
	Get(key string) (string, bool, error)

	// Set 写入键值对，已存在的键会被覆盖
	// 参数：
	//   - key: 键
	//   - value: 值
	// 返回：
	//   - error: 写入错误
	Set(key string, value string) error

	// Remove 删除键
	// 参数：
	//   - key: 键
	// 返回：
	//   - error: 删除错误，键不存在返回 ErrKeyNotFound
	Remove(key string) error

	// Close 关闭存储引擎，释放资源
	Close() error
}

// Stats 是引擎状态的快照
type Stats struct {
	Keys          int    // 索引中的存活键数量
	Segments      int    // 磁盘上的段文件数量
	NextSegmentID uint64 // 下一次写入使用的段 ID
	PendingWrites int    // 距上次压缩以来的写入次数
	Compactions   uint64 // 成功完成的压缩次数
}

// StatsProvider 由能够报告自身状态的引擎实现
type StatsProvider interface {
	Stats() Stats
}
