package vortexstats

import (
	"context"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"golang.org/x/xerrors"
)

// RedisSink stores each category of a report as a Redis hash of owner→count.
type RedisSink struct {
	Client    redis.UniversalClient
	Prefix    string
	Separator string
}

// NewRedisSink creates a Redis sink.
func NewRedisSink(client redis.UniversalClient, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "vrtx"
	}
	return &RedisSink{
		Client:    client,
		Prefix:    prefix,
		Separator: DefaultSeparator,
	}
}

func (d *RedisSink) Description() string {
	return "RedisSink"
}

// Write replaces every category hash for key in a single MULTI/EXEC.
func (d *RedisSink) Write(ctx context.Context, key ReportKey, s Snapshot) error {
	if d.Client == nil {
		return xerrors.New("redis sink requires Client")
	}

	_, err := d.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range Categories() {
			hashKey := d.hashKey(key, c)
			pipe.Del(ctx, hashKey)
			fields := toRedisFieldValues(s.counts[c])
			if len(fields) == 0 {
				continue
			}
			pipe.HSet(ctx, hashKey, fields...)
		}
		return nil
	})
	if err != nil {
		return xerrors.Errorf("write report %q: %w", key.Join(d.separator()), err)
	}
	return nil
}

// Read loads every category hash for key.
func (d *RedisSink) Read(ctx context.Context, key ReportKey) (map[Category]map[string]int64, error) {
	if d.Client == nil {
		return nil, xerrors.New("redis sink requires Client")
	}

	out := emptyCounts()
	for _, c := range Categories() {
		raw, err := d.Client.HGetAll(ctx, d.hashKey(key, c)).Result()
		if err != nil {
			return nil, xerrors.Errorf("read %s: %w", c, err)
		}
		for owner, value := range raw {
			count, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, xerrors.Errorf("parse %s count for %q: %w", c, owner, err)
			}
			out[c][owner] = count
		}
	}
	return out, nil
}

func (d *RedisSink) hashKey(key ReportKey, c Category) string {
	key.Prefix = d.Prefix
	return key.CategoryJoin(d.separator(), c)
}

func (d *RedisSink) separator() string {
	if d.Separator == "" {
		return DefaultSeparator
	}
	return d.Separator
}

func toRedisFieldValues(values map[string]int64) []any {
	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make([]any, 0, len(values)*2)
	for _, field := range fields {
		out = append(out, field, values[field])
	}
	return out
}
