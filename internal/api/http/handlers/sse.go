package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const (
	streamBuffer      = 32
	heartbeatInterval = 15 * time.Second
)

// sseEvent is one server-sent event frame.
type sseEvent struct {
	Name string
	Data any
}

// eventQueue hands events from a feed goroutine to the response writer
// without ever blocking the feed. On overflow the oldest event is dropped;
// every payload carries full state, so the newest one supersedes it.
type eventQueue chan sseEvent

func newEventQueue() eventQueue {
	return make(eventQueue, streamBuffer)
}

func (q eventQueue) offer(ev sseEvent) {
	for {
		select {
		case q <- ev:
			return
		default:
		}
		select {
		case <-q:
		default:
		}
	}
}

func prepareStream(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}

// streamEvents writes events from queue until the client goes away or done
// closes. cleanup runs exactly once when the stream ends.
func streamEvents(c *fiber.Ctx, first *sseEvent, queue eventQueue, done <-chan struct{}, cleanup func()) {
	prepareStream(c)
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cleanup()

		if first != nil {
			if err := writeEvent(w, *first); err != nil {
				return
			}
		}

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case ev := <-queue:
				if err := writeEvent(w, ev); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}))
}

func writeEvent(w *bufio.Writer, ev sseEvent) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, payload); err != nil {
		return err
	}
	return w.Flush()
}
