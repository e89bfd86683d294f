package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forever-free1/kvs/storage"
)

// DefaultAddr 默认服务地址
const DefaultAddr = "127.0.0.1:4000"

// DefaultTimeout 默认请求超时
const DefaultTimeout = 5 * time.Second

// ErrEmptyKey 表示键为空
// HTTP 接口把键放在路径中，空键无法寻址
var ErrEmptyKey = errors.New("key must not be empty")

// Client 是 kvs-server HTTP 接口的客户端
// 实现了 storage.Engine，可以替代本地引擎使用
type Client struct {
	baseURL string
	http    *http.Client
}

// Option 定义 Client 的配置函数
type Option func(*Client)

// WithTimeout 设置请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient 使用自定义的 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New 创建客户端
// addr 可以是 host:port，也可以是完整的 http(s) URL
func New(addr string, opts ...Option) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	c := &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type setRequest struct {
	Value string `json:"value"`
}

type valueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Get 读取键，不存在时返回 ("", false, nil)
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.do(http.MethodGet, key, nil)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, readError(resp)
	}

	var body valueResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, fmt.Errorf("解析响应失败: %w", err)
	}
	return body.Value, true, nil
}

// Set 写入键值对
func (c *Client) Set(key string, value string) error {
	data, err := json.Marshal(setRequest{Value: value})
	if err != nil {
		return err
	}
	resp, err := c.do(http.MethodPut, key, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return nil
}

// Remove 删除键，不存在时返回 storage.ErrKeyNotFound
func (c *Client) Remove(key string) error {
	resp, err := c.do(http.MethodDelete, key, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return storage.ErrKeyNotFound
	default:
		return readError(resp)
	}
}

// Close 释放空闲连接
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) do(method, key string, body []byte) (*http.Response, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+"/v1/kv/"+url.PathEscape(key), r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 %s 失败: %w", c.baseURL, err)
	}
	return resp, nil
}

// readError 把非 2xx 响应转换为错误
func readError(resp *http.Response) error {
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		body.Error = resp.Status
	}

	err := fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	if resp.StatusCode == http.StatusServiceUnavailable {
		return errors.Join(storage.ErrClosed, err)
	}
	return err
}

// 确保 Client 实现了 storage.Engine 接口
var _ storage.Engine = (*Client)(nil)
