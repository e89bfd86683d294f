// kvs 直接操作本地存储目录的命令行工具
//
//	kvs set <key> <value> [-dir path]
//	kvs get <key> [-dir path]
//	kvs rm <key> [-dir path]
package main

import (
	"flag"
	"os"

	"github.com/forever-free1/kvs/client"
	"github.com/forever-free1/kvs/storage"
	"github.com/forever-free1/kvs/storage/bitcask"
)

func main() {
	os.Exit(client.Run("kvs", os.Args[1:], os.Stdout, os.Stderr, func(fs *flag.FlagSet) client.Opener {
		dir := fs.String("dir", ".", "存储目录")
		compress := fs.Bool("compress", false, "使用 snappy 压缩新写入的记录")
		return func() (storage.Engine, error) {
			return bitcask.Open(*dir, bitcask.WithCompression(*compress))
		}
	}))
}
