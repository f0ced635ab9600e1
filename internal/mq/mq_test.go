package mq_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/chatify/apiserver/config"
	"github.com/chatify/apiserver/internal/mq"
	"github.com/stretchr/testify/require"
)

type captureBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
}

func (c *captureBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	c.channel, c.data, c.attrs = channel, data, attrs
	return "msg-1", nil
}

func (c *captureBackend) Subscribe(context.Context, string, mq.Handler) error { return nil }
func (c *captureBackend) Close() error                                        { return nil }

func TestMQ_PublishJSON(t *testing.T) {
	t.Parallel()

	backend := &captureBackend{}
	id, err := mq.New(backend).PublishJSON(context.Background(), "post.moderated", map[string]any{"postId": "p1"}, nil)
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)
	require.Equal(t, "post.moderated", backend.channel)
	require.Equal(t, "application/json", backend.attrs["content-type"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(backend.data, &decoded))
	require.Equal(t, "p1", decoded["postId"])
}

func TestOpen(t *testing.T) {
	t.Parallel()

	q, err := mq.Open(context.Background(), config.Config{})
	require.NoError(t, err)
	require.Nil(t, q)

	_, err = mq.Open(context.Background(), config.Config{MQ: config.MQConfig{Backend: config.MQBackendRabbitMQ}})
	require.Error(t, err)

	_, err = mq.Open(context.Background(), config.Config{MQ: config.MQConfig{Backend: "carrier-pigeon"}})
	require.Error(t, err)
}
