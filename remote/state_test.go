package remote

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState(t *testing.T) {
	t.Run("new state is neither connected nor closed", func(t *testing.T) {
		s := NewState()

		assert.False(t, s.IsConnected())
		assert.False(t, s.IsClosed())
		assert.Nil(t, s.Handler())
		select {
		case <-s.Done():
			t.Fatal("done closed too early")
		default:
		}
	})

	t.Run("MarkLost closes done once and keeps first error", func(t *testing.T) {
		s := NewState()
		s.MarkConnected()
		first := errors.New("first")

		assert.True(t, s.MarkLost(first))
		assert.False(t, s.MarkLost(errors.New("second")))

		<-s.Done()
		assert.Equal(t, first, s.Err())
		assert.False(t, s.IsConnected())
		assert.True(t, s.IsClosed())
	})

	t.Run("MarkConnected reopens a lost state", func(t *testing.T) {
		s := NewState()
		s.MarkConnected()
		s.MarkLost(errors.New("gone"))
		lost := s.Done()

		s.MarkConnected()

		assert.True(t, s.IsConnected())
		assert.NoError(t, s.Err())
		assert.NotEqual(t, lost, s.Done())
		select {
		case <-s.Done():
			t.Fatal("reopened done must be open")
		default:
		}
	})

	t.Run("OnMessage replaces the handler", func(t *testing.T) {
		s := NewState()
		var got []string
		s.OnMessage(func(ctx context.Context, topic string, msg json.RawMessage) { got = append(got, "a") })
		s.OnMessage(func(ctx context.Context, topic string, msg json.RawMessage) { got = append(got, "b") })

		s.Handler()(context.Background(), "chatter", nil)
		assert.Equal(t, []string{"b"}, got)
	})
}
