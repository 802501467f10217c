package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	assert.Nil(t, d)
	d.Emit(context.Background(), Event{})
	d.Close()
	assert.Zero(t, d.Dropped())
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "verify_email_success", Flow: "verify_email", Success: true})
	}
	d.Close()

	for i := 0; i < 3; i++ {
		select {
		case e := <-sink.Events():
			assert.Equal(t, "verify_email", e.Flow)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "x"})
	}
	assert.Positive(t, d.Dropped())

	close(sink.release)
	d.Close()
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: "signup_success", Flow: "signup", Success: true})
	s.Emit(context.Background(), Event{EventType: "signup_failure", Flow: "signup", Error: "UserAlreadyExists"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var e Event
	require.NoError(t, json.Unmarshal(lines[1], &e))
	assert.Equal(t, "UserAlreadyExists", e.Error)
}

func TestZapSinkLogsEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewZapSink(zap.New(core))

	s.Emit(context.Background(), Event{
		EventType: "complete_reset_failure",
		Flow:      "complete_reset",
		IP:        "10.0.0.1",
		Error:     "DecodeError",
		Metadata:  map[string]string{"stage": "decode"},
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "complete_reset_failure", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "DecodeError", ctx["error"])
	assert.Equal(t, "decode", ctx["meta.stage"])
}
