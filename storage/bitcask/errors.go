package bitcask

import "errors"

// ErrInvalidEntry 表示无效的 Entry 数据（长度不足、类型未知等）
var ErrInvalidEntry = errors.New("invalid entry data")

// ErrCRCMismatch 表示 CRC 校验失败
var ErrCRCMismatch = errors.New("CRC checksum mismatch")

// ErrFileClosed 表示文件已关闭
var ErrFileClosed = errors.New("file is closed")
