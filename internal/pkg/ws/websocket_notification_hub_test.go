package ws

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingConn struct {
	events []any
	fail   bool
}

func (c *recordingConn) WriteJSON(v any) error {
	if c.fail {
		return errors.New("closed")
	}
	c.events = append(c.events, v)
	return nil
}

func TestPublishReachesOnlyTopicListeners(t *testing.T) {
	hub := newHub()
	a, b, broken := &recordingConn{}, &recordingConn{}, &recordingConn{fail: true}
	hub.RegisterListener("accounts/alice.near", a)
	hub.RegisterListener("accounts/alice.near", broken)
	hub.RegisterListener("accounts/bob.near", b)

	hub.Publish("accounts/alice.near", "hello")

	assert.Equal(t, []any{"hello"}, a.events)
	assert.Empty(t, b.events)
}

func TestUnregisterRemovesEmptyTopic(t *testing.T) {
	hub := newHub()
	a, b := &recordingConn{}, &recordingConn{}
	hub.RegisterListener("t", a)
	hub.RegisterListener("t", b)

	hub.UnregisterListener("t", a)
	assert.Equal(t, 1, hub.ListenerCount("t"))
	hub.Publish("t", 1)
	assert.Empty(t, a.events)
	assert.Equal(t, []any{1}, b.events)

	hub.UnregisterListener("t", b)
	assert.Equal(t, 0, hub.ListenerCount("t"))
	assert.NotContains(t, hub.listeners, "t")
}

func TestNewNotificationHubIsSingleton(t *testing.T) {
	assert.Same(t, NewNotificationHub(), NewNotificationHub())
}
