package bitcask

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/forever-free1/kvs/storage"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultReaderCacheSize 默认最多缓存的段文件读句柄数量
const DefaultReaderCacheSize = 256

// ReaderCache 按段 ID 缓存只读文件句柄，支持随机读取历史段
// 句柄按需打开，超出容量时按 LRU 淘汰并关闭，下次读取会重新打开
type ReaderCache struct {
	dir      string
	cache    *lru.Cache
	closeErr error // 最近一次淘汰回调中关闭句柄的错误
}

// NewReaderCache 创建读句柄缓存
// 参数：
//   - dir: 存储目录
//   - size: 最多同时打开的句柄数量
func NewReaderCache(dir string, size int) (*ReaderCache, error) {
	if size <= 0 {
		size = DefaultReaderCacheSize
	}
	rc := &ReaderCache{dir: dir}
	cache, err := lru.NewWithEvict(size, rc.onEvict)
	if err != nil {
		return nil, fmt.Errorf("创建读句柄缓存失败: %w", err)
	}
	rc.cache = cache
	return rc, nil
}

// onEvict 淘汰回调，关闭被移出缓存的句柄
func (rc *ReaderCache) onEvict(_ interface{}, value interface{}) {
	if err := value.(*os.File).Close(); err != nil && rc.closeErr == nil {
		rc.closeErr = err
	}
}

// reader 获取段 id 的句柄，未缓存时打开并放入缓存
func (rc *ReaderCache) reader(id uint64) (*os.File, error) {
	if v, ok := rc.cache.Get(id); ok {
		return v.(*os.File), nil
	}

	file, err := os.Open(SegmentPath(rc.dir, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: 段 %d: %w", storage.ErrSegmentMissing, id, err)
		}
		return nil, fmt.Errorf("%w: 打开段文件 %d 失败: %w", storage.ErrIO, id, err)
	}
	rc.cache.Add(id, file)
	return file, nil
}

// Read 读取 pos 指向的 Entry
// 段文件不存在返回 ErrSegmentMissing，读到的字节不足 pos.Length 返回 ErrSerialization
func (rc *ReaderCache) Read(pos *storage.Position) (*Entry, error) {
	file, err := rc.reader(pos.SegmentID)
	if err != nil {
		return nil, err
	}

	// 跳转到指定偏移量
	if _, err := file.Seek(int64(pos.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: 段 %d 定位失败 (offset=%d): %w", storage.ErrIO, pos.SegmentID, pos.Offset, err)
	}

	data := make([]byte, pos.Length)
	if _, err := io.ReadFull(file, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w: 段 %d 在 %s 处数据不完整",
				storage.ErrSerialization, ErrInvalidEntry, pos.SegmentID, pos)
		}
		return nil, fmt.Errorf("%w: 读取 %s 失败: %w", storage.ErrIO, pos, err)
	}

	e, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("段 %d: %w", pos.SegmentID, err)
	}
	return e, nil
}

// Scan 从头到尾流式解码段 id 中的所有 Entry，依次回调 fn
// fn 返回错误时停止扫描并返回该错误
//
// 注意：fn 中不得再通过本缓存读取其他段，否则当前句柄可能被 LRU 淘汰关闭
func (rc *ReaderCache) Scan(id uint64, fn func(e *Entry, pos *storage.Position) error) error {
	file, err := rc.reader(id)
	if err != nil {
		return err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: 段 %d 定位失败: %w", storage.ErrIO, id, err)
	}

	dec := NewDecoder(bufio.NewReader(file))
	for {
		e, start, end, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("回放段 %d 失败: %w", id, err)
		}
		pos := &storage.Position{SegmentID: id, Offset: start, Length: end - start}
		if err := fn(e, pos); err != nil {
			return err
		}
	}
}

// Evict 关闭并移除段 id 的缓存句柄
// 压缩删除段文件之前必须先调用
func (rc *ReaderCache) Evict(id uint64) error {
	rc.closeErr = nil
	rc.cache.Remove(id)
	if err := rc.closeErr; err != nil {
		rc.closeErr = nil
		return fmt.Errorf("%w: 关闭段 %d 的读句柄失败: %w", storage.ErrIO, id, err)
	}
	return nil
}

// Cached 判断段 id 当前是否有缓存的句柄
func (rc *ReaderCache) Cached(id uint64) bool {
	return rc.cache.Contains(id)
}

// Len 返回当前缓存的句柄数量
func (rc *ReaderCache) Len() int {
	return rc.cache.Len()
}

// Close 关闭所有缓存的句柄
func (rc *ReaderCache) Close() error {
	rc.closeErr = nil
	rc.cache.Purge()
	if err := rc.closeErr; err != nil {
		rc.closeErr = nil
		return fmt.Errorf("%w: 关闭读句柄失败: %w", storage.ErrIO, err)
	}
	return nil
}
