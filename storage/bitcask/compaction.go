package bitcask

import (
	"fmt"
	"time"

	"github.com/forever-free1/kvs/storage"
	"github.com/forever-free1/kvs/storage/index"
)

// CompactionResult 记录一次压缩的结果
type CompactionResult struct {
	Scanned    int           // 扫描的段数量
	Removed    int           // 因被新写入覆盖而删除的段数量
	Tombstones int           // 删除的墓碑段数量
	Duration   time.Duration // 耗时
}

// Observer 接收压缩结果，用于指标统计
type Observer interface {
	ObserveCompaction(result CompactionResult, err error)
}

// keptSegment 记录压缩过程中保留的段
type keptSegment struct {
	id        uint64
	keys      []string
	tombstone bool // 段内全部为 Remove 记录
}

// Compact 立即执行一次压缩
//
// 算法：
//  1. 按段 ID 从新到旧扫描，记录已见过的 key
//  2. 段内所有 key 都已见过的段已被更新的写入覆盖，关闭读句柄后删除
//  3. 第 2 步全部成功后，删除只包含 Remove 且 key 不再出现在其他保留段中的墓碑段，
//     此时该 key 更早的 Set 都已被删除，回放不再需要这个墓碑
//  4. 用保留段中存活的 Set 整体重建索引和布隆过滤器
//
// 任一删除失败都会中止本次压缩，索引保持不变，计数器不清零，下次达到阈值时重试
func (db *DB) Compact() error {
	if db.closed {
		return storage.ErrClosed
	}

	start := time.Now()
	result, err := db.compact()
	result.Duration = time.Since(start)

	if db.options.Observer != nil {
		db.options.Observer.ObserveCompaction(result, err)
	}
	if err != nil {
		db.logger.Error("压缩中止",
			"scanned", result.Scanned,
			"removed", result.Removed,
			"error", err)
		return err
	}

	db.pendingWrites = 0
	db.compactions++
	db.logger.Info("压缩完成",
		"scanned", result.Scanned,
		"removed", result.Removed,
		"tombstones", result.Tombstones,
		"keys", db.index.Size(),
		"duration", result.Duration)
	return nil
}

func (db *DB) compact() (CompactionResult, error) {
	var result CompactionResult

	// 活跃段也可能被删除（例如墓碑段），先关闭写入器，下次写入会切换到新段
	if err := db.writer.Close(); err != nil {
		return result, fmt.Errorf("关闭活跃段失败: %w", err)
	}

	ids, err := ListSegments(db.dir)
	if err != nil {
		return result, err
	}
	db.segments = len(ids)

	live := index.New(db.options.IndexType)
	seen := make(map[string]struct{})
	owners := make(map[string]int)
	var kept []keptSegment

	// 第 1、2 步：从新到旧扫描，删除被覆盖的段
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]

		var entries []*Entry
		var positions []*storage.Position
		err := db.readers.Scan(id, func(e *Entry, pos *storage.Position) error {
			entries = append(entries, e)
			positions = append(positions, pos)
			return nil
		})
		if err != nil {
			live.Close()
			return result, err
		}
		result.Scanned++

		stale := true
		for _, e := range entries {
			if _, ok := seen[e.Key]; !ok {
				stale = false
				break
			}
		}
		if stale {
			if err := db.removeSegment(id); err != nil {
				live.Close()
				return result, err
			}
			result.Removed++
			continue
		}

		seg := keptSegment{id: id, tombstone: true}
		distinct := make(map[string]struct{}, len(entries))
		// 段内同样是后写入的优先，倒序处理
		for j := len(entries) - 1; j >= 0; j-- {
			e := entries[j]
			if e.Kind != KindRemove {
				seg.tombstone = false
			}
			if _, ok := distinct[e.Key]; !ok {
				distinct[e.Key] = struct{}{}
				seg.keys = append(seg.keys, e.Key)
				owners[e.Key]++
			}
			if _, ok := seen[e.Key]; ok {
				continue
			}
			seen[e.Key] = struct{}{}
			if e.Kind == KindSet {
				live.Put(e.Key, positions[j])
			}
		}
		kept = append(kept, seg)
	}

	// 第 3 步：删除不再需要的墓碑段
	for _, seg := range kept {
		if !seg.tombstone || !soleOwner(seg.keys, owners) {
			continue
		}
		if err := db.removeSegment(seg.id); err != nil {
			live.Close()
			return result, err
		}
		result.Tombstones++
	}

	// 第 4 步：整体替换索引并重建布隆过滤器
	if live.Size() != db.index.Size() {
		db.logger.Warn("压缩后索引与原索引不一致，以日志为准",
			"old_keys", db.index.Size(),
			"new_keys", live.Size())
	}
	old := db.index
	db.index = live
	old.Close()
	db.bloomFilter.Rebuild(db.index)

	return result, nil
}

// soleOwner 判断 keys 中的每个 key 是否只出现在一个保留段中
func soleOwner(keys []string, owners map[string]int) bool {
	for _, k := range keys {
		if owners[k] != 1 {
			return false
		}
	}
	return true
}

// removeSegment 关闭段 id 的读句柄并删除文件
// 删除失败时文件仍在，读句柄缓存会在下次读取时重新打开，不会悬空
func (db *DB) removeSegment(id uint64) error {
	if err := db.readers.Evict(id); err != nil {
		db.logger.Warn("关闭段读句柄失败", "segment", id, "error", err)
	}
	if err := db.removeFile(SegmentPath(db.dir, id)); err != nil {
		return fmt.Errorf("%w: 删除段 %d 失败: %w", storage.ErrIO, id, err)
	}
	db.segments--
	return nil
}
