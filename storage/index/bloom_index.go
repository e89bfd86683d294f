package index

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/forever-free1/kvs/storage"
)

// BloomFilter 是布隆过滤器的并发安全包装类
// 用于快速判断一个 key 是否可能存在于索引中
//
// 布隆过滤器不支持删除，Remove 之后的 key 仍可能返回 true，
// 因此只能用于否定判断，肯定结果必须再查索引确认
type BloomFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewBloomFilter 创建一个新的布隆过滤器
// 参数：
//   - n: 预期存储的元素数量
//   - fp: 期望的误判率
//
// 返回：
//   - *BloomFilter: 布隆过滤器指针
func NewBloomFilter(n uint, fp float64) *BloomFilter {
	// 使用 NewWithEstimates 自动计算最优的 m 和 k
	return &BloomFilter{
		filter: bloom.NewWithEstimates(n, fp),
	}
}

// Add 添加一个 key 到布隆过滤器
func (bf *BloomFilter) Add(key string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.filter.AddString(key)
}

// Test 测试一个 key 是否可能存在于布隆过滤器中
// 返回：
//   - bool: true 表示可能存在，false 表示一定不存在
func (bf *BloomFilter) Test(key string) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.TestString(key)
}

// Reset 清空布隆过滤器，保留容量和哈希函数数量
func (bf *BloomFilter) Reset() {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.filter.ClearAll()
}

// Rebuild 清空后用索引中的全部 key 重建
// 压缩完成后调用，清除已删除 key 留下的位
func (bf *BloomFilter) Rebuild(idx Index) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.filter.ClearAll()
	idx.Ascend(func(key string, _ *storage.Position) bool {
		bf.filter.AddString(key)
		return true
	})
}

// K 返回布隆过滤器使用的哈希函数数量
func (bf *BloomFilter) K() uint {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.K()
}

// Cap 返回布隆过滤器的位数组容量
func (bf *BloomFilter) Cap() uint {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.Cap()
}
