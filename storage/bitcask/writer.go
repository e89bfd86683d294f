package bitcask

import (
	"bufio"
	"fmt"
	"os"

	"github.com/forever-free1/kvs/storage"
)

// SegmentWriter 是段文件的追加写入器
// 任意时刻最多绑定一个活跃段文件
type SegmentWriter struct {
	dir       string
	segmentID uint64
	file      *os.File
	buf       *bufio.Writer
	writeOff  uint64 // 当前写入偏移量
	sync      bool   // 每次写入后是否 fsync
	compress  bool   // 是否压缩 Payload
}

// NewSegmentWriter 创建写入器，创建后未绑定任何段，需先调用 RollTo
// 参数：
//   - dir: 存储目录
//   - sync: 每次 Append 后是否调用 fsync
//   - compress: 是否使用 snappy 压缩 Payload
func NewSegmentWriter(dir string, sync bool, compress bool) *SegmentWriter {
	return &SegmentWriter{
		dir:      dir,
		sync:     sync,
		compress: compress,
	}
}

// RollTo 关闭当前段（如有），打开或创建段 id
// 写入偏移量重置为该文件的当前长度，新建文件为 0
func (w *SegmentWriter) RollTo(id uint64) error {
	if err := w.Close(); err != nil {
		return err
	}

	// O_APPEND: 每次写入从文件末尾开始
	file, err := os.OpenFile(SegmentPath(w.dir, id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: 打开段文件 %d 失败: %w", storage.ErrIO, id, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("%w: 获取段文件 %d 状态失败: %w", storage.ErrIO, id, err)
	}

	w.segmentID = id
	w.file = file
	w.buf = bufio.NewWriter(file)
	w.writeOff = uint64(stat.Size())
	return nil
}

// Append 追加写入一条 Entry，返回其位置
// 返回前缓冲区必须已刷到操作系统，开启 sync 时还会 fsync
func (w *SegmentWriter) Append(e *Entry) (*storage.Position, error) {
	if w.file == nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrIO, ErrFileClosed)
	}

	data, err := encode(e, w.compress)
	if err != nil {
		return nil, err
	}

	// 记录写入前的偏移量（作为返回的 Position）
	offset := w.writeOff

	n, err := w.buf.Write(data)
	if err != nil {
		return nil, fmt.Errorf("%w: 写入段文件 %d 失败: %w", storage.ErrIO, w.segmentID, err)
	}
	if err := w.buf.Flush(); err != nil {
		return nil, fmt.Errorf("%w: 刷新段文件 %d 失败: %w", storage.ErrIO, w.segmentID, err)
	}
	if w.sync {
		if err := w.file.Sync(); err != nil {
			return nil, fmt.Errorf("%w: 同步段文件 %d 失败: %w", storage.ErrIO, w.segmentID, err)
		}
	}

	w.writeOff += uint64(n)

	return &storage.Position{
		SegmentID: w.segmentID,
		Offset:    offset,
		Length:    uint64(n),
	}, nil
}

// SegmentID 返回当前绑定的段 ID
func (w *SegmentWriter) SegmentID() uint64 {
	return w.segmentID
}

// WriteOff 返回当前写入偏移量
func (w *SegmentWriter) WriteOff() uint64 {
	return w.writeOff
}

// Discard 放弃当前段：不刷新缓冲区，关闭句柄并删除文件
// 用于 Append 失败后清理写了一半的段
func (w *SegmentWriter) Discard() error {
	if w.file == nil {
		return nil
	}
	file := w.file
	w.file = nil
	w.buf = nil
	file.Close()
	if err := os.Remove(SegmentPath(w.dir, w.segmentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: 删除段文件 %d 失败: %w", storage.ErrIO, w.segmentID, err)
	}
	return nil
}

// Close 刷新并关闭当前段，未绑定时不做任何事
func (w *SegmentWriter) Close() error {
	if w.file == nil {
		return nil
	}

	file := w.file
	w.file = nil
	defer func() { w.buf = nil }()

	if err := w.buf.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("%w: 关闭前刷新段文件 %d 失败: %w", storage.ErrIO, w.segmentID, err)
	}
	if w.sync {
		if err := file.Sync(); err != nil {
			file.Close()
			return fmt.Errorf("%w: 关闭前同步段文件 %d 失败: %w", storage.ErrIO, w.segmentID, err)
		}
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: 关闭段文件 %d 失败: %w", storage.ErrIO, w.segmentID, err)
	}
	return nil
}
