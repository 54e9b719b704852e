package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseFrame struct {
	Event string
	Data  map[string]any
}

// serve exposes the app on a loopback port. Streams need a real connection,
// since the response body keeps flowing after the handler returns.
func (s *testServer) serve(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.app.Listener(ln) }()
	t.Cleanup(func() { _ = s.app.ShutdownWithTimeout(time.Second) })
	return "http://" + ln.Addr().String()
}

// openStream connects in the background and forwards parsed frames. The
// response body is closed by the returned func or at test cleanup.
func openStream(t *testing.T, url, token string) (<-chan sseFrame, func()) {
	t.Helper()
	req, err := nethttp.NewRequest(nethttp.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	frames := make(chan sseFrame, 16)
	bodies := make(chan io.Closer, 1)
	go func() {
		defer close(frames)
		resp, err := nethttp.DefaultClient.Do(req)
		if err != nil {
			return
		}
		bodies <- resp.Body
		if resp.StatusCode != fiber.StatusOK {
			return
		}
		readFrames(resp.Body, frames)
	}()

	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			select {
			case body := <-bodies:
				_ = body.Close()
			case <-time.After(2 * time.Second):
			}
		})
	}
	t.Cleanup(closeFn)
	return frames, closeFn
}

func readFrames(r io.Reader, frames chan<- sseFrame) {
	reader := bufio.NewReader(r)
	var current sseFrame
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := map[string]any{}
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data) == nil {
				current.Data = data
			}
		case line == "" && current.Event != "":
			frames <- current
			current = sseFrame{}
		}
	}
}

func nextFrame(t *testing.T, frames <-chan sseFrame) sseFrame {
	t.Helper()
	select {
	case frame, ok := <-frames:
		require.True(t, ok, "stream closed")
		return frame
	case <-time.After(3 * time.Second):
		require.FailNow(t, "no event on stream")
	}
	return sseFrame{}
}

func httpJSON(t *testing.T, method, url, token string, payload any) int {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := nethttp.NewRequest(method, url, body)
	require.NoError(t, err)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func openSubscribers(t *testing.T, base string) float64 {
	t.Helper()
	resp, err := nethttp.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if value, ok := strings.CutPrefix(scanner.Text(), "candidate_feed_subscribers "); ok {
			parsed, err := strconv.ParseFloat(value, 64)
			require.NoError(t, err)
			return parsed
		}
	}
	require.FailNow(t, "candidate_feed_subscribers not exported")
	return 0
}

func TestStatusStreamDeliversTransitionsAfterOtherTraffic(t *testing.T) {
	s := newTestServer(t)
	base := s.serve(t)
	token := s.login(t, "admin@example.com", "rahasia")
	id := s.register(t, "22010001")

	frames, _ := openStream(t, base+"/candidates/"+id+"/status/stream", "")
	first := nextFrame(t, frames)
	assert.Equal(t, "status", first.Event)
	assert.Equal(t, id, first.Data["id"])
	assert.Equal(t, "submitted", first.Data["status"])
	assert.EqualValues(t, 25, first.Data["progress"])

	// Unrelated requests recycle the server's request contexts.
	for i := 0; i < 20; i++ {
		assert.Equal(t, fiber.StatusNotFound,
			httpJSON(t, fiber.MethodGet, base+"/candidates/ffffffff-ffff-ffff-ffff-ffffffffffff/status", "", nil))
	}
	assert.Equal(t, 1, s.broker.SubscriberCount(id))

	require.Equal(t, fiber.StatusOK, httpJSON(t, fiber.MethodPost, base+"/admin/candidates/"+id+"/transitions", token,
		map[string]string{"status": "underReview", "note": "berkas lengkap"}))

	next := nextFrame(t, frames)
	assert.Equal(t, "status", next.Event)
	assert.Equal(t, "underReview", next.Data["status"])
	assert.Equal(t, "berkas lengkap", next.Data["admin_note"])
	assert.EqualValues(t, 50, next.Data["progress"])
}

func TestStatusStreamRejectsUnknownCandidates(t *testing.T) {
	s := newTestServer(t)
	base := s.serve(t)

	for _, id := range []string{"not-a-uuid", "00000000-0000-0000-0000-000000000000"} {
		assert.Equal(t, fiber.StatusNotFound, httpJSON(t, fiber.MethodGet, base+"/candidates/"+id+"/status/stream", "", nil))
		assert.Zero(t, s.broker.SubscriberCount(id))
	}
}

func TestStatusStreamDisconnectReleasesSubscriber(t *testing.T) {
	s := newTestServer(t)
	base := s.serve(t)
	token := s.login(t, "admin@example.com", "rahasia")
	id := s.register(t, "22010002")

	frames, closeStream := openStream(t, base+"/candidates/"+id+"/status/stream", "")
	nextFrame(t, frames)
	assert.Equal(t, float64(1), openSubscribers(t, base))

	closeStream()

	// The server notices the hang-up on its next write, so keep producing
	// changes until the stream is torn down.
	targets := []string{"underReview", "approved"}
	deadline := time.Now().Add(5 * time.Second)
	for i := 0; ; i++ {
		httpJSON(t, fiber.MethodPost, base+"/admin/candidates/"+id+"/transitions", token,
			map[string]string{"status": targets[i%2]})
		if openSubscribers(t, base) == 0 && s.broker.SubscriberCount(id) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream still subscribed after client disconnect")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestAdminStreamDeliversEveryChangeKind(t *testing.T) {
	s := newTestServer(t)
	base := s.serve(t)
	token := s.login(t, "admin@example.com", "rahasia")

	frames, _ := openStream(t, base+"/admin/candidates/stream", token)
	require.Eventually(t, func() bool { return s.broker.SubscriberCount("*") == 1 },
		2*time.Second, 10*time.Millisecond)

	id := s.register(t, "22010003")
	require.Equal(t, fiber.StatusOK, httpJSON(t, fiber.MethodPost, base+"/admin/candidates/"+id+"/transitions", token,
		map[string]string{"status": "underReview"}))
	require.Equal(t, fiber.StatusNoContent, httpJSON(t, fiber.MethodDelete, base+"/admin/candidates/"+id, token, nil))

	created := nextFrame(t, frames)
	assert.Equal(t, "created", created.Event)
	assert.Equal(t, id, created.Data["candidate_id"])

	updated := nextFrame(t, frames)
	assert.Equal(t, "updated", updated.Event)
	candidate, ok := updated.Data["candidate"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "underReview", candidate["status"])

	deleted := nextFrame(t, frames)
	assert.Equal(t, "deleted", deleted.Event)
	assert.Equal(t, id, deleted.Data["candidate_id"])
	assert.NotContains(t, deleted.Data, "candidate")
}

func TestAdminStreamRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	base := s.serve(t)

	assert.Equal(t, fiber.StatusUnauthorized, httpJSON(t, fiber.MethodGet, base+"/admin/candidates/stream", "", nil))
	assert.Zero(t, s.broker.SubscriberCount("*"))
}
