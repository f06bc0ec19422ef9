// Package kv provides the key-value persistence backends: in-memory, SQLite
// and Redis, plus the value codecs used on top of them.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Store is a flat string-keyed byte store. Get reports absence with false rather than an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists keys beginning with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Codec encodes values stored in a Store.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return "msgpack" }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

var (
	// JSON is the default codec; stored values stay readable with any SQLite or Redis client.
	JSON Codec = jsonCodec{}
	// Msgpack is a compact binary codec.
	Msgpack Codec = msgpackCodec{}
)

// CodecByName returns the codec called name. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// GetValue decodes the value under key into v. It reports false when the key is absent.
func GetValue(ctx context.Context, s Store, c Codec, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := c.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetValue encodes v and stores it under key.
func SetValue(ctx context.Context, s Store, c Codec, key string, v any) error {
	data, err := c.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
