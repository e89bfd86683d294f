// kvs-client 通过 HTTP 访问 kvs-server
//
//	kvs-client set <key> <value> [-addr 127.0.0.1:4000]
//	kvs-client get <key> [-addr 127.0.0.1:4000]
//	kvs-client rm <key> [-addr 127.0.0.1:4000]
package main

import (
	"flag"
	"os"

	"github.com/forever-free1/kvs/client"
	"github.com/forever-free1/kvs/storage"
)

func main() {
	os.Exit(client.Run("kvs-client", os.Args[1:], os.Stdout, os.Stderr, func(fs *flag.FlagSet) client.Opener {
		addr := fs.String("addr", client.DefaultAddr, "服务地址")
		timeout := fs.Duration("timeout", client.DefaultTimeout, "请求超时")
		return func() (storage.Engine, error) {
			return client.New(*addr, client.WithTimeout(*timeout)), nil
		}
	}))
}
