package bitcask

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/forever-free1/kvs/storage"
)

// SegmentExt 段文件扩展名
const SegmentExt = ".log"

// StoreDirName 存储目录下存放段文件的子目录名
// 段文件与用户文件隔离，传给 Open 的目录中可以有其他文件
const StoreDirName = "kvs-data"

// StorePath 返回 path 下的段文件目录
func StorePath(path string) string {
	return filepath.Join(path, StoreDirName)
}

// SegmentName 返回段文件名（不含路径），例如 "12.log"
func SegmentName(id uint64) string {
	return strconv.FormatUint(id, 10) + SegmentExt
}

// SegmentPath 返回段文件的完整路径
func SegmentPath(dir string, id uint64) string {
	return filepath.Join(dir, SegmentName(id))
}

// ParseSegmentName 从文件名解析段 ID
// 只接受 "<非负十进制整数>.log"，其他名称返回 ErrPathFormat
func ParseSegmentName(name string) (uint64, error) {
	stem, ok := strings.CutSuffix(name, SegmentExt)
	if !ok || stem == "" {
		return 0, fmt.Errorf("%w: %q", storage.ErrPathFormat, name)
	}
	id, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", storage.ErrPathFormat, name, err)
	}
	// 拒绝 "007.log" 这类非规范名称，否则两个文件会映射到同一个段 ID
	if SegmentName(id) != name {
		return 0, fmt.Errorf("%w: %q", storage.ErrPathFormat, name)
	}
	return id, nil
}

// ListSegments 列出目录中的所有段 ID，按升序排列
// 目录中出现任何无法解析的条目（包括子目录）都视为损坏，返回 ErrPathFormat
func ListSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取目录失败: %w", storage.ErrIO, err)
	}

	ids := make([]uint64, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			return nil, fmt.Errorf("%w: 存储目录中存在子目录 %q", storage.ErrPathFormat, entry.Name())
		}
		id, err := ParseSegmentName(entry.Name())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids, nil
}
