package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatify/apiserver/config"
	libnats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSBackend stores values in a JetStream key-value bucket.
type NATSBackend struct {
	conn *libnats.Conn
	kv   jetstream.KeyValue
}

// NewNATSBackend connects to NATS and opens the configured bucket,
// creating it first when cfg.Init is set.
func NewNATSBackend(ctx context.Context, cfg config.NATSConfig) (*NATSBackend, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("nats bucket is required")
	}

	nc, err := libnats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	var kv jetstream.KeyValue
	if cfg.Init {
		kv, err = js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: cfg.Bucket})
	} else {
		kv, err = js.KeyValue(ctx, cfg.Bucket)
	}
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &NATSBackend{conn: nc, kv: kv}, nil
}

func (n *NATSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(ctx, natsKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

func (n *NATSBackend) Put(ctx context.Context, key string, value []byte) error {
	if _, err := n.kv.Put(ctx, natsKey(key), value); err != nil {
		return fmt.Errorf("failed to store key %s: %w", key, err)
	}
	return nil
}

func (n *NATSBackend) Close() error {
	return n.conn.Drain()
}

// natsKey maps path separators onto the token separator JetStream keys allow.
func natsKey(key string) string {
	return strings.ReplaceAll(key, "/", ".")
}
