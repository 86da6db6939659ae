package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisBroadcaster_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := ConversationChannel(3, 9)
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	b := NewRedisBroadcaster(client, zap.NewNop())
	require.NoError(t, b.Publish(ctx, channel, Event{
		Type:       EventTypeMessage,
		Text:       "New message",
		Properties: map[string]interface{}{"message_id": 42},
	}))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "messages_3_9", msg.Channel)
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, EventTypeMessage, got.Type)
		assert.Equal(t, "New message", got.Text)
		assert.EqualValues(t, 42, got.Properties["message_id"])
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestRedisBroadcaster_PublishFailsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	b := NewRedisBroadcaster(client, zap.NewNop())
	err := b.Publish(context.Background(), UserChannel(1), Event{Type: EventTypeNotification})
	assert.Error(t, err)
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "events_7", UserChannel(7))
	assert.Equal(t, "messages_7_12", ConversationChannel(7, 12))
	assert.Equal(t, "scheduled_messages_7_12", ScheduledChannel(7, 12))
}

func TestBuildMail(t *testing.T) {
	raw := string(buildMail("alerts@example.org", Mail{
		To:      "pat@example.org",
		Subject: "New message from Jo",
		Body:    "Jo sent you a message.",
	}))

	head, body, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found)
	assert.Contains(t, head, "From: alerts@example.org\r\n")
	assert.Contains(t, head, "To: pat@example.org\r\n")
	assert.Contains(t, head, "Subject: =?UTF-8?B?"+base64.StdEncoding.EncodeToString([]byte("New message from Jo"))+"?=")
	assert.Contains(t, head, "Content-Transfer-Encoding: base64")

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(body))
	require.NoError(t, err)
	assert.Equal(t, "Jo sent you a message.", string(decoded))
}
