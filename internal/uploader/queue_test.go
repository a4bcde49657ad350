package uploader

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingNotifier counts terminal notifications.
type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(kind Kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

func (n *recordingNotifier) Error(kind Kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.successes), len(n.errors)
}

// flakyServer fails the first failures requests with status, then succeeds.
func flakyServer(t *testing.T, failures int, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the multipart body so the client never sees a write error
		// in place of the response.
		_, _ = io.Copy(io.Discard, r.Body)
		n := atomic.AddInt32(&hits, 1)
		if int(n) <= failures {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"success":false,"error":"upstream unavailable"}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":{"url":"http://cdn.test/obj"}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestQueue(t *testing.T, srv *httptest.Server) (*Manager, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	m := New(NewClient(srv.URL), WithNotifier(notifier))
	t.Cleanup(m.Close)
	return m, notifier
}

func TestQueueScenarios(t *testing.T) {
	t.Run("valid thumbnail completes with one success notification", func(t *testing.T) {
		srv, hits := flakyServer(t, 0, 0)
		m, notifier := newTestQueue(t, srv)

		var gotURL string
		id, err := m.AddToQueue(FileFromBytes("cover.jpg", "image/jpeg", make([]byte, 2<<20)), KindThumbnail, AddOptions{
			Callbacks: Callbacks{OnSuccess: func(url string) { gotURL = url }},
		})
		if err != nil {
			t.Fatalf("AddToQueue rejected a valid file: %v", err)
		}
		m.Wait()

		item, ok := m.Lookup(id)
		if !ok {
			t.Fatal("item disappeared from the queue")
		}
		if item.Status != StatusCompleted || item.Progress != 100 || item.Result == "" {
			t.Errorf("item = %+v, want completed at 100%% with a URL", item)
		}
		if gotURL != item.Result {
			t.Errorf("OnSuccess got %q, item.Result %q", gotURL, item.Result)
		}
		if s, e := notifier.counts(); s != 1 || e != 0 {
			t.Errorf("notifications = %d success / %d error, want 1/0", s, e)
		}
		if got := atomic.LoadInt32(hits); got != 1 {
			t.Errorf("server hit %d times, want 1", got)
		}
	})

	t.Run("oversized image is rejected before the network", func(t *testing.T) {
		srv, hits := flakyServer(t, 0, 0)
		m, notifier := newTestQueue(t, srv)

		id, err := m.AddToQueue(testFile("huge.png", "image/png", 20), KindAdditionalImage, AddOptions{})
		if err == nil || id != "" {
			t.Fatalf("expected rejection, got id=%q err=%v", id, err)
		}
		if got := len(m.Items()); got != 0 {
			t.Errorf("queue length = %d, want 0", got)
		}
		if s, e := notifier.counts(); s != 0 || e != 1 {
			t.Errorf("notifications = %d success / %d error, want 0/1", s, e)
		}
		if got := atomic.LoadInt32(hits); got != 0 {
			t.Errorf("server hit %d times, want 0", got)
		}
	})

	t.Run("transient failures are retried to completion", func(t *testing.T) {
		srv, hits := flakyServer(t, 2, http.StatusServiceUnavailable)
		m, _ := newTestQueue(t, srv)

		id, err := m.AddToQueue(FileFromBytes("clip.mp4", "video/mp4", make([]byte, 1<<20)), KindVideo, AddOptions{})
		if err != nil {
			t.Fatalf("AddToQueue: %v", err)
		}
		m.Wait()

		item, _ := m.Lookup(id)
		if item.Status != StatusCompleted {
			t.Fatalf("status = %s, want completed (error %q)", item.Status, item.Error)
		}
		if item.RetryCount != 2 {
			t.Errorf("RetryCount = %d, want 2", item.RetryCount)
		}
		if got := atomic.LoadInt32(hits); got != 3 {
			t.Errorf("server hit %d times, want 3", got)
		}
	})

	t.Run("exhausted retries fail with one error notification", func(t *testing.T) {
		srv, _ := flakyServer(t, 100, http.StatusServiceUnavailable)
		m, notifier := newTestQueue(t, srv)

		id, err := m.AddToQueue(FileFromBytes("clip.mp4", "video/mp4", make([]byte, 1<<20)), KindVideo, AddOptions{MaxRetries: 3})
		if err != nil {
			t.Fatalf("AddToQueue: %v", err)
		}
		m.Wait()

		item, _ := m.Lookup(id)
		if item.Status != StatusFailed {
			t.Fatalf("status = %s, want failed", item.Status)
		}
		if item.RetryCount != 3 {
			t.Errorf("RetryCount = %d, want 3", item.RetryCount)
		}
		if item.Error == "" {
			t.Error("failed item must carry an error message")
		}
		if s, e := notifier.counts(); s != 0 || e != 1 {
			t.Errorf("notifications = %d success / %d error, want 0/1", s, e)
		}
	})

	t.Run("4xx responses are terminal without retries", func(t *testing.T) {
		srv, hits := flakyServer(t, 100, http.StatusBadRequest)
		m, _ := newTestQueue(t, srv)

		id, _ := m.AddToQueue(FileFromBytes("a.jpg", "image/jpeg", []byte("x")), KindThumbnail, AddOptions{})
		m.Wait()

		item, _ := m.Lookup(id)
		if item.Status != StatusFailed || item.RetryCount != 0 {
			t.Errorf("status=%s retries=%d, want immediate failure with 0 retries", item.Status, item.RetryCount)
		}
		if got := atomic.LoadInt32(hits); got != 1 {
			t.Errorf("server hit %d times, want 1", got)
		}
	})

	t.Run("removal mid-upload aborts and unregisters the handle", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(entered)
			<-release
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })

		m, notifier := newTestQueue(t, srv)

		id, _ := m.AddToQueue(FileFromBytes("a.jpg", "image/jpeg", []byte("x")), KindThumbnail, AddOptions{})
		<-entered

		waitForStatus(t, m, id, StatusUploading)
		m.RemoveFromQueue(id)
		m.Wait()

		if _, ok := m.Lookup(id); ok {
			t.Error("item still present after RemoveFromQueue")
		}
		m.mu.Lock()
		registrySize := len(m.inflight)
		m.mu.Unlock()
		if registrySize != 0 {
			t.Errorf("cancellation registry holds %d entries, want 0", registrySize)
		}
		// Cancellation produces no terminal notification.
		if s, e := notifier.counts(); s != 0 || e != 0 {
			t.Errorf("notifications = %d success / %d error, want 0/0", s, e)
		}
	})
}

func TestRetryUpload(t *testing.T) {
	// Fail the first four attempts (initial + 3 automatic retries); the
	// user-initiated retry then succeeds.
	srv, _ := flakyServer(t, 4, http.StatusServiceUnavailable)
	m, _ := newTestQueue(t, srv)

	id, _ := m.AddToQueue(FileFromBytes("a.jpg", "image/jpeg", []byte("x")), KindThumbnail, AddOptions{MaxRetries: 3})
	m.Wait()

	item, _ := m.Lookup(id)
	if item.Status != StatusFailed || item.RetryCount != 3 {
		t.Fatalf("precondition: status=%s retries=%d", item.Status, item.RetryCount)
	}

	m.RetryUpload(id)
	m.Wait()

	item, _ = m.Lookup(id)
	if item.Status != StatusCompleted {
		t.Fatalf("status = %s after manual retry, want completed (error %q)", item.Status, item.Error)
	}
	// Manual retries share the automatic budget; the count stays put.
	if item.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", item.RetryCount)
	}

	// RetryUpload on a non-failed item is a no-op.
	m.RetryUpload(id)
	item, _ = m.Lookup(id)
	if item.Status != StatusCompleted {
		t.Errorf("RetryUpload touched a completed item: %s", item.Status)
	}
}

func TestClearCompleted(t *testing.T) {
	srv, _ := flakyServer(t, 0, 0)
	m, _ := newTestQueue(t, srv)

	done, _ := m.AddToQueue(FileFromBytes("a.jpg", "image/jpeg", []byte("x")), KindThumbnail, AddOptions{})
	m.Wait()

	failSrv, _ := flakyServer(t, 100, http.StatusBadRequest)
	m2, _ := newTestQueue(t, failSrv)
	failed, _ := m2.AddToQueue(FileFromBytes("b.jpg", "image/jpeg", []byte("x")), KindThumbnail, AddOptions{})
	m2.Wait()

	m.ClearCompleted()
	if _, ok := m.Lookup(done); ok {
		t.Error("completed item survived ClearCompleted")
	}

	m2.ClearCompleted()
	if _, ok := m2.Lookup(failed); ok {
		t.Error("failed item survived ClearCompleted")
	}
}

func TestOrdering(t *testing.T) {
	// Serve strictly one request at a time and record the order files arrive.
	var mu sync.Mutex
	var order []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			if fhs := r.MultipartForm.File["file"]; len(fhs) == 1 {
				mu.Lock()
				order = append(order, fhs[0].Filename)
				mu.Unlock()
			}
		}
		fmt.Fprint(w, `{"success":true,"data":{"url":"http://cdn.test/obj"}}`)
	}))
	t.Cleanup(srv.Close)

	m, _ := newTestQueue(t, srv)
	for _, name := range []string{"1.jpg", "2.jpg", "3.jpg"} {
		if _, err := m.AddToQueue(FileFromBytes(name, "image/jpeg", []byte("x")), KindThumbnail, AddOptions{}); err != nil {
			t.Fatalf("AddToQueue(%s): %v", name, err)
		}
	}
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "1.jpg" || order[1] != "2.jpg" || order[2] != "3.jpg" {
		t.Errorf("upload order = %v, want insertion order", order)
	}
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if item, ok := m.Lookup(id); ok && item.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("item %s never reached status %s", id, want)
}
