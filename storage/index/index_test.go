package index

import (
	"fmt"
	"testing"

	"github.com/forever-free1/kvs/storage"
)

func allIndexes() map[string]Index {
	return map[string]Index{
		"art":   NewARTIndex(),
		"btree": NewBTreeIndex(),
	}
}

func TestIndex_PutGetDelete(t *testing.T) {
	for name, idx := range allIndexes() {
		t.Run(name, func(t *testing.T) {
			defer idx.Close()

			pos := &storage.Position{SegmentID: 3, Offset: 0, Length: 42}
			idx.Put("a", pos)
			if got := idx.Get("a"); got != pos {
				t.Fatalf("Get 返回错误的位置: got %v, want %v", got, pos)
			}
			if idx.Get("missing") != nil {
				t.Errorf("不存在的键应返回 nil")
			}

			// 覆盖
			newer := &storage.Position{SegmentID: 7, Offset: 0, Length: 40}
			idx.Put("a", newer)
			if got := idx.Get("a"); got != newer {
				t.Errorf("覆盖后位置不匹配: got %v, want %v", got, newer)
			}
			if idx.Size() != 1 {
				t.Errorf("Size 应为 1, 得到 %d", idx.Size())
			}

			if !idx.Delete("a") {
				t.Errorf("删除存在的键应返回 true")
			}
			if idx.Delete("a") {
				t.Errorf("重复删除应返回 false")
			}
			if idx.Size() != 0 {
				t.Errorf("删除后 Size 应为 0, 得到 %d", idx.Size())
			}
		})
	}
}

func TestIndex_AscendVisitsAllKeys(t *testing.T) {
	for name, idx := range allIndexes() {
		t.Run(name, func(t *testing.T) {
			defer idx.Close()

			want := map[string]uint64{}
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%03d", i)
				want[key] = uint64(i)
				idx.Put(key, &storage.Position{SegmentID: uint64(i)})
			}

			seen := map[string]uint64{}
			idx.Ascend(func(key string, pos *storage.Position) bool {
				seen[key] = pos.SegmentID
				return true
			})
			if len(seen) != len(want) {
				t.Fatalf("遍历数量不匹配: got %d, want %d", len(seen), len(want))
			}
			for k, v := range want {
				if seen[k] != v {
					t.Errorf("键 %s 的段 ID 不匹配: got %d, want %d", k, seen[k], v)
				}
			}
		})
	}
}

func TestBTreeIndex_AscendOrderAndStop(t *testing.T) {
	idx := NewBTreeIndex()
	for _, k := range []string{"c", "a", "d", "b"} {
		idx.Put(k, &storage.Position{})
	}

	var keys []string
	idx.Ascend(func(key string, _ *storage.Position) bool {
		keys = append(keys, key)
		return len(keys) < 3
	})

	want := []string{"a", "b", "c"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("遍历顺序不匹配: got %v, want %v", keys, want)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", TypeART, false},
		{"art", TypeART, false},
		{"btree", TypeBTree, false},
		{"hash", TypeART, true},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, ok := New(TypeBTree).(*BTreeIndex); !ok {
		t.Errorf("New(TypeBTree) 应返回 *BTreeIndex")
	}
}

func TestBloomFilter_RebuildDropsRemovedKeys(t *testing.T) {
	bf := NewBloomFilter(1000, 0.001)
	for i := 0; i < 100; i++ {
		bf.Add(fmt.Sprintf("old-%d", i))
	}
	if !bf.Test("old-1") {
		t.Fatalf("已添加的键必须返回 true")
	}

	idx := NewBTreeIndex()
	idx.Put("live", &storage.Position{})
	bf.Rebuild(idx)

	if !bf.Test("live") {
		t.Errorf("重建后索引中的键必须返回 true")
	}
	falsePositives := 0
	for i := 0; i < 100; i++ {
		if bf.Test(fmt.Sprintf("old-%d", i)) {
			falsePositives++
		}
	}
	// 误判率 0.1%，100 个旧键全部误判几乎不可能
	if falsePositives > 10 {
		t.Errorf("重建后旧键误判过多: %d", falsePositives)
	}

	bf.Reset()
	if bf.Test("live") {
		t.Errorf("Reset 后不应包含任何键")
	}
}
