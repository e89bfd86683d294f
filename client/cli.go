package client

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/forever-free1/kvs/storage"
)

// 命令行输出格式
const (
	MsgSet      = "[KVS] Successfully stored key=%s and value=%s."
	MsgRemove   = "[KVS] Successfully removed key=%s"
	MsgGet      = "[KVS] key=%s value=%s"
	MsgNotFound = "[KVS] No value found for key=%s"
	MsgError    = "[KVS] ERROR: %s"
)

// Opener 在参数解析完成后打开引擎
type Opener func() (storage.Engine, error)

// Run 执行 get/set/rm 子命令，返回进程退出码
//
// 参数：
//   - name: 程序名，用于帮助信息
//   - args: 不含程序名的命令行参数
//   - stdout, stderr: 输出
//   - register: 在子命令的 FlagSet 上注册额外参数，返回打开引擎的函数
//
// 返回：
//   - int: 成功为 0，任何错误为 1
func Run(name string, args []string, stdout, stderr io.Writer, register func(fs *flag.FlagSet) Opener) int {
	if len(args) == 0 {
		usage(name, stderr)
		return 1
	}

	cmd := args[0]
	want := map[string]int{"get": 1, "set": 2, "rm": 1}
	n, ok := want[cmd]
	if !ok {
		fmt.Fprintf(stderr, MsgError+"\n", fmt.Sprintf("unknown command %q", cmd))
		usage(name, stderr)
		return 1
	}

	fs := flag.NewFlagSet(name+" "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	open := register(fs)

	positional, err := parseInterleaved(fs, args[1:])
	if err != nil {
		return 1
	}
	if len(positional) != n {
		fmt.Fprintf(stderr, MsgError+"\n", fmt.Sprintf("%s expects %d argument(s), got %d", cmd, n, len(positional)))
		return 1
	}

	engine, err := open()
	if err != nil {
		fmt.Fprintf(stderr, MsgError+"\n", err)
		return 1
	}
	defer engine.Close()

	key := positional[0]
	switch cmd {
	case "get":
		value, found, err := engine.Get(key)
		if err != nil {
			fmt.Fprintf(stderr, MsgError+"\n", err)
			return 1
		}
		if !found {
			fmt.Fprintf(stdout, MsgNotFound+"\n", key)
			return 0
		}
		fmt.Fprintf(stdout, MsgGet+"\n", key, value)

	case "set":
		value := positional[1]
		if err := engine.Set(key, value); err != nil {
			fmt.Fprintf(stderr, MsgError+"\n", err)
			return 1
		}
		fmt.Fprintf(stdout, MsgSet+"\n", key, value)

	case "rm":
		if err := engine.Remove(key); err != nil {
			if errors.Is(err, storage.ErrKeyNotFound) {
				fmt.Fprintf(stdout, MsgError+"\n", "Key not found")
			} else {
				fmt.Fprintf(stderr, MsgError+"\n", err)
			}
			return 1
		}
		fmt.Fprintf(stdout, MsgRemove+"\n", key)
	}
	return 0
}

// parseInterleaved 允许参数与位置参数交错，例如 "get key -addr host:port"
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func usage(name string, w io.Writer) {
	fmt.Fprintf(w, "Usage:\n  %s get <key>\n  %s set <key> <value>\n  %s rm <key>\n", name, name, name)
}
