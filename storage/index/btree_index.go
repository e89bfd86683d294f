package index

import (
	"github.com/forever-free1/kvs/storage"
	"github.com/google/btree"
)

// btreeDegree B 树的阶数
const btreeDegree = 32

// item 是 B 树中存储的元素
type item struct {
	key string
	pos *storage.Position
}

func lessItem(a, b item) bool {
	return a.key < b.key
}

// BTreeIndex 是基于 google/btree 的有序内存索引实现
type BTreeIndex struct {
	tree *btree.BTreeG[item]
}

// NewBTreeIndex 创建一个新的 B 树索引实例
func NewBTreeIndex() *BTreeIndex {
	return &BTreeIndex{
		tree: btree.NewG(btreeDegree, lessItem),
	}
}

// Put 写入或覆盖键的位置
func (idx *BTreeIndex) Put(key string, pos *storage.Position) {
	idx.tree.ReplaceOrInsert(item{key: key, pos: pos})
}

// Get 根据键获取位置，不存在返回 nil
func (idx *BTreeIndex) Get(key string) *storage.Position {
	it, found := idx.tree.Get(item{key: key})
	if !found {
		return nil
	}
	return it.pos
}

// Delete 删除键，返回键是否存在
func (idx *BTreeIndex) Delete(key string) bool {
	_, deleted := idx.tree.Delete(item{key: key})
	return deleted
}

// Size 返回键数量
func (idx *BTreeIndex) Size() int {
	return idx.tree.Len()
}

// Ascend 按键升序遍历
func (idx *BTreeIndex) Ascend(fn func(key string, pos *storage.Position) bool) {
	idx.tree.Ascend(func(it item) bool {
		return fn(it.key, it.pos)
	})
}

// Close 清空 B 树
func (idx *BTreeIndex) Close() {
	idx.tree.Clear(false)
}

// 确保 BTreeIndex 实现了 Index 接口
var _ Index = (*BTreeIndex)(nil)
