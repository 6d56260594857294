package redis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld 锁已被其他持有者占用
var ErrLockHeld = errors.New("lock already held")

// Client Redis客户端结构体
// 封装了Redis客户端的核心功能，提供了与应用相关的Redis操作方法
//
// 字段:
//
//	client: 底层的Redis客户端实例
//	ctx: 上下文，用于管理Redis操作的生命周期
//	prefix: 所有键的统一前缀，多个部署共用同一个Redis时使用
type Client struct {
	client *redis.Client
	ctx    context.Context
	prefix string
}

// releaseScript 仅当锁的值与持有者令牌一致时才删除
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// NewClient 创建新的Redis客户端
// 支持两种格式的Redis URL:
// 1. 简单格式: localhost:6379
// 2. URL格式: redis://[password@]host:port/db
//
// 示例:
//
//	client, err := redis.NewClient("localhost:6379")
//	client, err := redis.NewClient("redis://password@localhost:6379/0")
func NewClient(redisURL string) (*Client, error) {
	opt, err := parseOptions(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &Client{
		client: client,
		ctx:    ctx,
	}, nil
}

// NewClientFromRaw 使用已有的底层客户端创建封装，测试中配合 miniredis 使用
func NewClientFromRaw(raw *redis.Client) *Client {
	return &Client{
		client: raw,
		ctx:    context.Background(),
	}
}

// parseOptions 解析Redis连接地址
func parseOptions(redisURL string) (*redis.Options, error) {
	opt := &redis.Options{}

	// 如果redisURL是纯主机名或IP地址，使用默认端口
	if !strings.Contains(redisURL, "://") {
		opt.Addr = redisURL
		if !strings.Contains(opt.Addr, ":") {
			opt.Addr = fmt.Sprintf("%s:6379", opt.Addr)
		}
		return opt, nil
	}

	parsed, err := url.Parse(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %v", err)
	}

	opt.Addr = parsed.Host
	if !strings.Contains(opt.Addr, ":") {
		opt.Addr = fmt.Sprintf("%s:6379", opt.Addr)
	}

	// 解析密码
	if parsed.User != nil {
		opt.Password, _ = parsed.User.Password()
	}

	// 解析数据库
	db := 0
	if parsed.Path != "" && parsed.Path != "/" {
		fmt.Sscanf(parsed.Path[1:], "%d", &db)
	}
	opt.DB = db

	return opt, nil
}

// SetKeyPrefix 设置键前缀
func (c *Client) SetKeyPrefix(prefix string) {
	c.prefix = prefix
}

// Key 拼接带前缀的键
func (c *Client) Key(parts ...string) string {
	key := strings.Join(parts, ":")
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Context 获取上下文
func (c *Client) Context() context.Context {
	return c.ctx
}

// GetRawClient 获取原始Redis客户端实例
func (c *Client) GetRawClient() *redis.Client {
	return c.client
}

// Close 关闭Redis连接
func (c *Client) Close() error {
	return c.client.Close()
}

// Ping 检查连接是否可用
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// AcquireLock 使用 SET NX PX 获取锁，返回持有者令牌
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

// ReleaseLock 释放锁，令牌不匹配（锁已过期被他人获取）时不做任何操作
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, c.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}
