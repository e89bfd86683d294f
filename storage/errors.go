package storage

import "errors"

// ErrKeyNotFound 表示键不存在的错误
// 仅由 Remove 返回，Get 通过 bool 返回值表示不存在
var ErrKeyNotFound = errors.New("key not found")

// ErrIO 表示文件创建、打开、读写、刷盘或删除失败
var ErrIO = errors.New("io error")

// ErrSerialization 表示 Entry 字节数据格式错误
var ErrSerialization = errors.New("serialization error")

// ErrPathFormat 表示存储目录中存在无法解析为段 ID 的文件
var ErrPathFormat = errors.New("invalid segment file name")

// ErrSegmentMissing 表示索引引用的段文件已不存在
// 这是内部一致性错误，说明压缩逻辑有缺陷或文件被外部删除
var ErrSegmentMissing = errors.New("segment file missing")

// ErrIndexCorrupted 表示索引与日志不一致，例如索引指向了一条 Remove 记录
var ErrIndexCorrupted = errors.New("index does not match log")

// ErrClosed 表示引擎已关闭
var ErrClosed = errors.New("engine is closed")

// IsInternal 判断错误是否属于引擎内部一致性错误
// 用于区分"磁盘问题"与"引擎不变量被破坏"
func IsInternal(err error) bool {
	return errors.Is(err, ErrSegmentMissing) || errors.Is(err, ErrIndexCorrupted)
}
