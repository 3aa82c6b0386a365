package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sessiond/internal/model"
	"github.com/sessiond/internal/storage"
)

// Ключи: session:{id} — hash с полями записи; sessions:last_access — sorted set id → last_accessed_at (мкс).
// Изменения hash и индекса выполняются Lua-скриптами, поэтому touch и sweep атомарны на стороне Redis.
const (
	sessionKeyPrefix = "session:"
	lastAccessIndex  = "sessions:last_access"
)

var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'email', ARGV[2], 'nickname', ARGV[3], 'mac_address', ARGV[4],
	'server_ip', ARGV[5], 'server_mac', ARGV[6], 'created_at', ARGV[7], 'last_accessed_at', ARGV[8])
redis.call('ZADD', KEYS[2], ARGV[8], ARGV[1])
return 1
`)

var touchScript = redis.NewScript(`
local last = redis.call('HGET', KEYS[1], 'last_accessed_at')
if not last then return false end
last = tonumber(last)
if last < tonumber(ARGV[3]) then return false end
if ARGV[4] ~= '' then redis.call('HSET', KEYS[1], 'email', ARGV[4]) end
if ARGV[5] ~= '' then redis.call('HSET', KEYS[1], 'nickname', ARGV[5]) end
if tonumber(ARGV[2]) > last then
	redis.call('HSET', KEYS[1], 'last_accessed_at', ARGV[2])
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
end
return redis.call('HGETALL', KEYS[1])
`)

var deleteScript = redis.NewScript(`
local last = redis.call('HGET', KEYS[1], 'last_accessed_at')
if not last then return 0 end
if tonumber(last) < tonumber(ARGV[2]) then return 0 end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// deleteIdleScript строит ключи записей из префикса, поэтому рассчитан на standalone Redis (не Cluster).
var deleteIdleScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
for _, id in ipairs(ids) do
	redis.call('DEL', ARGV[2] .. id)
	redis.call('ZREM', KEYS[1], id)
end
return ids
`)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

// LogAddr возвращает host:port/db для логов, без пароля и прочих параметров URL.
func LogAddr(url string) string {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return "<invalid url>"
	}
	return fmt.Sprintf("%s/%d", opts.Addr, opts.DB)
}

// NewFromClient оборачивает готовый клиент (тесты, общий пул).
func NewFromClient(cli *redis.Client) *Client {
	return &Client{cli: cli}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func micros(t time.Time) string { return strconv.FormatInt(t.UnixMicro(), 10) }

func (c *Client) Insert(ctx context.Context, s *model.Session) error {
	n, err := insertScript.Run(ctx, c.cli, []string{sessionKey(s.ID), lastAccessIndex},
		s.ID, s.Email, s.Nickname, s.MACAddress, s.Server.ServerIP, s.Server.ServerMAC,
		micros(s.CreatedAt), micros(s.LastAccessedAt),
	).Int()
	if err != nil {
		return fmt.Errorf("redis session insert: %w", err)
	}
	if n == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (c *Client) Touch(ctx context.Context, id string, upd model.SessionUpdate, now, idleCutoff time.Time) (*model.Session, error) {
	res, err := touchScript.Run(ctx, c.cli, []string{sessionKey(id), lastAccessIndex},
		id, micros(now), micros(idleCutoff), upd.Email, upd.Nickname,
	).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis session touch: %w", err)
	}
	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		k, _ := res[i].(string)
		v, _ := res[i+1].(string)
		fields[k] = v
	}
	return decodeSession(fields)
}

func (c *Client) Get(ctx context.Context, id string) (*model.Session, error) {
	fields, err := c.cli.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis session get: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}
	return decodeSession(fields)
}

func (c *Client) Delete(ctx context.Context, id string, idleCutoff time.Time) error {
	n, err := deleteScript.Run(ctx, c.cli, []string{sessionKey(id), lastAccessIndex}, id, micros(idleCutoff)).Int()
	if err != nil {
		return fmt.Errorf("redis session delete: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *Client) List(ctx context.Context) ([]model.Session, error) {
	ids, err := c.cli.ZRange(ctx, lastAccessIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis session list: %w", err)
	}
	if len(ids) == 0 {
		return []model.Session{}, nil
	}
	pipe := c.cli.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis session list: %w", err)
	}
	list := make([]model.Session, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		// Запись могли удалить между ZRANGE и HGETALL.
		if len(fields) == 0 {
			continue
		}
		s, err := decodeSession(fields)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, nil
}

func (c *Client) DeleteIdle(ctx context.Context, idleCutoff time.Time) ([]string, error) {
	ids, err := deleteIdleScript.Run(ctx, c.cli, []string{lastAccessIndex}, micros(idleCutoff), sessionKeyPrefix).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redis session delete idle: %w", err)
	}
	return ids, nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	n, err := c.cli.ZCard(ctx, lastAccessIndex).Result()
	if err != nil {
		return 0, fmt.Errorf("redis session count: %w", err)
	}
	return int(n), nil
}

func decodeSession(f map[string]string) (*model.Session, error) {
	created, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis session decode created_at: %w", err)
	}
	last, err := strconv.ParseInt(f["last_accessed_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis session decode last_accessed_at: %w", err)
	}
	return &model.Session{
		ID:             f["id"],
		Email:          f["email"],
		Nickname:       f["nickname"],
		MACAddress:     f["mac_address"],
		Server:         model.NetworkInfo{ServerIP: f["server_ip"], ServerMAC: f["server_mac"]},
		CreatedAt:      time.UnixMicro(created).UTC(),
		LastAccessedAt: time.UnixMicro(last).UTC(),
	}, nil
}
