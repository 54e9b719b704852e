package handlers

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueDropsOldestWhenFull(t *testing.T) {
	q := newEventQueue()
	for i := 0; i < streamBuffer+5; i++ {
		q.offer(sseEvent{Name: "status", Data: i})
	}
	require.Len(t, q, streamBuffer)

	first := <-q
	assert.Equal(t, 5, first.Data)

	var last sseEvent
	for len(q) > 0 {
		last = <-q
	}
	assert.Equal(t, streamBuffer+4, last.Data)
}

func TestWriteEventFraming(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	err := writeEvent(w, sseEvent{Name: "status", Data: map[string]any{"status": "approved", "progress": 100}})
	require.NoError(t, err)
	assert.Equal(t, "event: status\ndata: {\"progress\":100,\"status\":\"approved\"}\n\n", buf.String())
}
