package index

import (
	"fmt"

	"github.com/forever-free1/kvs/storage"
)

// Index 是内存索引的抽象接口
// 负责存储键到段文件位置（Position）的映射，实现必须按键的字典序有序
type Index interface {
	// Put 写入或覆盖键的位置
	// 参数：
	//   - key: 键
	//   - pos: 位置指针
	Put(key string, pos *storage.Position)

	// Get 根据键获取位置
	// 参数：
	//   - key: 键
	// 返回：
	//   - *storage.Position: 位置指针，不存在返回 nil
	Get(key string) *storage.Position

	// Delete 根据键删除索引
	// 返回：
	//   - bool: 键是否存在
	Delete(key string) bool

	// Size 返回索引中的键数量
	Size() int

	// Ascend 按键升序遍历，fn 返回 false 时停止
	Ascend(fn func(key string, pos *storage.Position) bool)

	// Close 关闭索引，释放资源
	Close()
}

// Type 定义索引实现类型
type Type int

const (
	// TypeART 使用自适应基数树（默认）
	TypeART Type = iota
	// TypeBTree 使用 B 树
	TypeBTree
)

// String 返回索引类型名称
func (t Type) String() string {
	switch t {
	case TypeART:
		return "art"
	case TypeBTree:
		return "btree"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType 从配置字符串解析索引类型
func ParseType(s string) (Type, error) {
	switch s {
	case "", "art":
		return TypeART, nil
	case "btree":
		return TypeBTree, nil
	default:
		return TypeART, fmt.Errorf("未知的索引类型: %q", s)
	}
}

// New 根据类型创建索引实例
func New(t Type) Index {
	switch t {
	case TypeBTree:
		return NewBTreeIndex()
	default:
		return NewARTIndex()
	}
}
