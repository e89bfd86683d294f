package watch

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/plar/go-adaptive-radix-tree"
)

// DefaultBufferSize 默认的 watcher 事件缓冲区大小
const DefaultBufferSize = 256

// ==================== 事件定义 ====================

// EventType 定义事件类型
type EventType string

const (
	EventSet    EventType = "set"
	EventRemove EventType = "remove"
)

// Event 表示一次写入成功后的键变更事件
type Event struct {
	Revision uint64    `json:"revision"`        // 事件序号，单调递增
	Type     EventType `json:"type"`            // set 或 remove
	Key      string    `json:"key"`             // 变更的键
	Value    string    `json:"value,omitempty"` // 新值，仅 set 事件有值
}

// JSON 将事件编码为 JSON 字符串
func (e *Event) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseEvent 从 JSON 解析事件
func ParseEvent(data string) (*Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ==================== Watcher 定义 ====================

// Watcher 表示一个订阅者
type Watcher struct {
	// Ch 推送事件的通道，Hub 关闭或取消订阅后被关闭
	Ch chan *Event

	// Prefix 关注的前缀，空字符串表示关注所有键
	Prefix string

	dropped atomic.Uint64
	closed  bool // 由 Hub.mu 保护
}

// Dropped 返回因缓冲区已满而丢弃的事件数量
func (w *Watcher) Dropped() uint64 {
	return w.dropped.Load()
}

// ==================== Hub 定义 ====================

// Hub 事件通知中心
// 前缀订阅保存在 ART 树中，通知时沿着 key 的每个前缀查找订阅者，
// 开销只与 key 长度有关，而与订阅者总数无关
type Hub struct {
	mu       sync.RWMutex
	all      []*Watcher // 关注所有键的 watcher
	prefixes art.Tree   // 前缀 -> []*Watcher
	count    int
	revision atomic.Uint64
	closed   bool
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		prefixes: art.New(),
	}
}

// Watch 注册一个新的 Watcher
//
// 参数：
//   - prefix: 关注的前缀，为空表示关注所有键
//   - bufferSize: 事件通道的缓冲区大小，<= 0 时使用 DefaultBufferSize
//
// 返回：
//   - *Watcher: 注册的 Watcher，Hub 已关闭时返回一个已关闭的 Watcher
func (h *Hub) Watch(prefix string, bufferSize int) *Watcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	w := &Watcher{
		Ch:     make(chan *Event, bufferSize),
		Prefix: prefix,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		w.closed = true
		close(w.Ch)
		return w
	}

	if prefix == "" {
		h.all = append(h.all, w)
	} else {
		var list []*Watcher
		if val, found := h.prefixes.Search(art.Key(prefix)); found {
			list = val.([]*Watcher)
		}
		h.prefixes.Insert(art.Key(prefix), append(list, w))
	}
	h.count++
	return w
}

// Unregister 取消注册并关闭 Watcher，重复调用是安全的
func (h *Hub) Unregister(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if w.closed {
		return
	}

	if w.Prefix == "" {
		h.all = removeWatcher(h.all, w)
	} else if val, found := h.prefixes.Search(art.Key(w.Prefix)); found {
		list := removeWatcher(val.([]*Watcher), w)
		if len(list) > 0 {
			h.prefixes.Insert(art.Key(w.Prefix), list)
		} else {
			h.prefixes.Delete(art.Key(w.Prefix))
		}
	}

	w.closed = true
	close(w.Ch)
	h.count--
}

// ==================== 事件通知 ====================

// Notify 将事件分发给所有匹配的 Watcher
// 非阻塞发送，缓冲区已满的 watcher 丢弃该事件并计数
func (h *Hub) Notify(event *Event) {
	event.Revision = h.revision.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for _, w := range h.match(event.Key) {
		select {
		case w.Ch <- event:
		default:
			w.dropped.Add(1)
		}
	}
}

// NotifySet 通知 set 事件
func (h *Hub) NotifySet(key string, value string) {
	h.Notify(&Event{Type: EventSet, Key: key, Value: value})
}

// NotifyRemove 通知 remove 事件
func (h *Hub) NotifyRemove(key string) {
	h.Notify(&Event{Type: EventRemove, Key: key})
}

// match 返回关注 key 的所有 watcher，调用方需持有读锁
func (h *Hub) match(key string) []*Watcher {
	result := make([]*Watcher, 0, len(h.all))
	result = append(result, h.all...)

	for i := 1; i <= len(key); i++ {
		if val, found := h.prefixes.Search(art.Key(key[:i])); found {
			result = append(result, val.([]*Watcher)...)
		}
	}
	return result
}

// ==================== 工具方法 ====================

// Count 返回当前注册的 watcher 数量
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Revision 返回最近一次事件的序号
func (h *Hub) Revision() uint64 {
	return h.revision.Load()
}

// Close 关闭所有 watcher，之后的 Watch 返回已关闭的 watcher
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for _, w := range h.all {
		w.closed = true
		close(w.Ch)
	}
	h.prefixes.ForEach(func(node art.Node) bool {
		for _, w := range node.Value().([]*Watcher) {
			w.closed = true
			close(w.Ch)
		}
		return true
	})

	h.all = nil
	h.prefixes = art.New()
	h.count = 0
}

// String 返回 Hub 的字符串描述
func (h *Hub) String() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fmt.Sprintf("Hub{watchers: %d, revision: %d}", h.count, h.Revision())
}

func removeWatcher(list []*Watcher, w *Watcher) []*Watcher {
	for i, x := range list {
		if x == w {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
