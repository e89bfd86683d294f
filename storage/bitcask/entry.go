package bitcask

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/forever-free1/kvs/storage"
	"github.com/golang/snappy"
	"github.com/hashicorp/go-msgpack/v2/codec"
)

// EntryKind 定义命令类型
type EntryKind uint8

const (
	// KindSet 写入命令
	KindSet EntryKind = iota + 1
	// KindRemove 删除命令（墓碑）
	KindRemove
)

// String 返回命令类型名称
func (k EntryKind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindRemove:
		return "remove"
	default:
		return fmt.Sprintf("EntryKind(%d)", uint8(k))
	}
}

// Entry 表示存储在段文件中的一条命令
// 写入后不可修改，是持久化和回放的最小单位
type Entry struct {
	Kind  EntryKind `codec:"k"`
	Key   string    `codec:"key"`
	Value string    `codec:"v,omitempty"` // 仅 Set 使用
}

// 编码格式：| CRC32 (4B) | Flags (1B) | PayloadSize (4B) | Payload |
// CRC 覆盖 Flags、PayloadSize 和 Payload
const HeaderSize = 9

// FlagSnappy 表示 Payload 经过 snappy 压缩
const FlagSnappy byte = 1 << 0

// maxPayloadSize 单条 Entry 的最大 Payload，防止损坏的头部导致超大内存分配
const maxPayloadSize = 1 << 30

var msgpackHandle = &codec.MsgpackHandle{}

// NewSetEntry 创建一条 Set 命令
func NewSetEntry(key, value string) *Entry {
	return &Entry{Kind: KindSet, Key: key, Value: value}
}

// NewRemoveEntry 创建一条 Remove 命令
func NewRemoveEntry(key string) *Entry {
	return &Entry{Kind: KindRemove, Key: key}
}

// IsRemove 判断是否为墓碑记录
func (e *Entry) IsRemove() bool {
	return e.Kind == KindRemove
}

// Encode 将 Entry 编码为字节切片，不压缩
func Encode(e *Entry) ([]byte, error) {
	return encode(e, false)
}

// encode 将 Entry 编码为字节切片
// 参数：
//   - e: 要编码的 Entry
//   - compress: 是否使用 snappy 压缩 Payload
//
// 返回：
//   - []byte: 编码后的字节切片
//   - error: 编码错误
func encode(e *Entry, compress bool) ([]byte, error) {
	if e.Kind != KindSet && e.Kind != KindRemove {
		return nil, fmt.Errorf("%w: 未知的命令类型 %d", ErrInvalidEntry, e.Kind)
	}

	var payload []byte
	enc := codec.NewEncoderBytes(&payload, msgpackHandle)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("%w: msgpack 编码失败: %w", storage.ErrSerialization, err)
	}

	var flags byte
	if compress {
		payload = snappy.Encode(nil, payload)
		flags |= FlagSnappy
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[4] = flags
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	// 计算 CRC32 校验和（不包括 CRC 字段本身）
	binary.LittleEndian.PutUint32(buf[0:4], crc32.ChecksumIEEE(buf[4:]))

	return buf, nil
}

// Decode 从字节切片解码出 Entry，data 必须恰好是一条完整的 Entry
func Decode(data []byte) (*Entry, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %w: 头部不完整 (%d 字节)", storage.ErrSerialization, ErrInvalidEntry, len(data))
	}
	size := binary.LittleEndian.Uint32(data[5:9])
	if uint64(len(data)) != uint64(HeaderSize)+uint64(size) {
		return nil, fmt.Errorf("%w: %w: 长度不匹配 (声明 %d, 实际 %d)",
			storage.ErrSerialization, ErrInvalidEntry, HeaderSize+int(size), len(data))
	}
	return decodeFrame(data[0:4], data[4], data[5:9], data[HeaderSize:])
}

// decodeFrame 校验 CRC 并解析 Payload
func decodeFrame(crc []byte, flags byte, sizeBuf []byte, payload []byte) (*Entry, error) {
	h := crc32.NewIEEE()
	h.Write([]byte{flags})
	h.Write(sizeBuf)
	h.Write(payload)
	if h.Sum32() != binary.LittleEndian.Uint32(crc) {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerialization, ErrCRCMismatch)
	}

	if flags&FlagSnappy != 0 {
		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy 解压失败: %w", storage.ErrSerialization, err)
		}
		payload = raw
	}

	var e Entry
	dec := codec.NewDecoderBytes(payload, msgpackHandle)
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("%w: msgpack 解码失败: %w", storage.ErrSerialization, err)
	}
	if e.Kind != KindSet && e.Kind != KindRemove {
		return nil, fmt.Errorf("%w: %w: 未知的命令类型 %d", storage.ErrSerialization, ErrInvalidEntry, e.Kind)
	}
	return &e, nil
}

// Decoder 从字节流中依次解码 Entry，并报告每条 Entry 占用的字节区间
type Decoder struct {
	r      io.Reader
	offset uint64
	header [HeaderSize]byte
}

// NewDecoder 创建流式解码器，偏移量从 0 开始计算
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next 解码下一条 Entry
// 返回：
//   - *Entry: 解码出的 Entry
//   - uint64: Entry 起始偏移量
//   - uint64: Entry 结束偏移量（不含）
//   - error: 流正常结束时返回 io.EOF，数据不完整或损坏返回 ErrSerialization
func (d *Decoder) Next() (*Entry, uint64, uint64, error) {
	start := d.offset

	n, err := io.ReadFull(d.r, d.header[:])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, start, start, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, start, start, fmt.Errorf("%w: %w: 偏移 %d 处头部被截断 (%d 字节)",
				storage.ErrSerialization, ErrInvalidEntry, start, n)
		}
		return nil, start, start, fmt.Errorf("%w: 读取头部失败: %w", storage.ErrIO, err)
	}

	size := binary.LittleEndian.Uint32(d.header[5:9])
	if size > maxPayloadSize {
		return nil, start, start, fmt.Errorf("%w: %w: 偏移 %d 处 Payload 长度异常 (%d)",
			storage.ErrSerialization, ErrInvalidEntry, start, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, start, start, fmt.Errorf("%w: %w: 偏移 %d 处 Payload 被截断",
				storage.ErrSerialization, ErrInvalidEntry, start)
		}
		return nil, start, start, fmt.Errorf("%w: 读取 Payload 失败: %w", storage.ErrIO, err)
	}

	e, err := decodeFrame(d.header[0:4], d.header[4], d.header[5:9], payload)
	if err != nil {
		return nil, start, start, fmt.Errorf("偏移 %d: %w", start, err)
	}

	d.offset = start + HeaderSize + uint64(size)
	return e, start, d.offset, nil
}

// Equals 比较两个 Entry 是否相等
func (e *Entry) Equals(other *Entry) bool {
	if e == other {
		return true
	}
	if e == nil || other == nil {
		return false
	}
	return e.Kind == other.Kind && e.Key == other.Key && e.Value == other.Value
}

// String 返回 Entry 的可读描述，调试用
func (e *Entry) String() string {
	var b bytes.Buffer
	b.WriteString(e.Kind.String())
	b.WriteString("(")
	b.WriteString(e.Key)
	if e.Kind == KindSet {
		b.WriteString(", ")
		b.WriteString(e.Value)
	}
	b.WriteString(")")
	return b.String()
}
