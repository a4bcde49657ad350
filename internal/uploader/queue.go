package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultMaxRetries bounds automatic retries of recoverable failures.
const DefaultMaxRetries = 3

// Callbacks are the optional per-item hooks the caller supplies. OnSuccess
// and OnError fire exactly once per terminal transition; OnProgress fires
// zero or more times while the item is uploading.
type Callbacks struct {
	OnSuccess  func(url string)
	OnError    func(err error)
	OnProgress func(percent int)
}

// AddOptions tune a single enqueued file.
type AddOptions struct {
	// Category is the logical storage folder, passed through to the server
	// unchanged. Defaults to the kind.
	Category string
	// MaxSizeMB overrides the validation ceiling; zero selects the kind's
	// default. Videos cannot be capped below VideoMaxSizeMB.
	MaxSizeMB int
	// MaxRetries bounds automatic retries; zero selects DefaultMaxRetries.
	MaxRetries int
	Callbacks  Callbacks
}

// Item is one file's end-to-end upload job and its tracked state. Failed
// items retain their last-known progress for diagnostic display.
type Item struct {
	ID         string
	File       File
	Kind       Kind
	Category   string
	Status     Status
	Progress   int
	Error      string
	Result     string
	RetryCount int
	MaxRetries int
	MaxSizeMB  int

	callbacks Callbacks
}

// Manager holds the ordered upload queue and drives items through
// validate → upload → retry/complete/fail. One goroutine processes items
// sequentially in insertion order; the public methods are safe for
// concurrent use.
type Manager struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []*Item
	inflight map[string]context.CancelFunc
	client   *Client
	notifier Notifier

	processing bool
	closed     bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier replaces the default log-backed notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// New creates a Manager that uploads through client.
func New(client *Client, opts ...Option) *Manager {
	m := &Manager{
		inflight: make(map[string]context.CancelFunc),
		client:   client,
		notifier: logNotifier{},
	}
	m.cond = sync.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddToQueue validates file and, on acceptance, appends a pending item and
// kicks the processing loop. On rejection it emits one error notification
// and returns an empty ID with the validation error; nothing is enqueued.
func (m *Manager) AddToQueue(file File, kind Kind, opts AddOptions) (string, error) {
	if err := Validate(file, kind, opts.MaxSizeMB); err != nil {
		m.notifier.Error(kind, fmt.Sprintf("%s rejected: %s", kind.Label(), err.Error()))
		return "", err
	}

	category := opts.Category
	if category == "" {
		category = string(kind)
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.New("upload queue is closed")
	}

	item := &Item{
		ID:         uuid.NewString(),
		File:       file,
		Kind:       kind,
		Category:   category,
		Status:     StatusPending,
		MaxRetries: maxRetries,
		MaxSizeMB:  opts.MaxSizeMB,
		callbacks:  opts.Callbacks,
	}
	m.items = append(m.items, item)
	m.startLocked()
	return item.ID, nil
}

// RemoveFromQueue aborts the item's in-flight request, if any, and deletes
// the item from the queue regardless of its state.
func (m *Manager) RemoveFromQueue(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.inflight[id]; ok {
		delete(m.inflight, id)
		cancel()
	}
	for i, it := range m.items {
		if it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			break
		}
	}
}

// RetryUpload reopens a failed item: pending again, progress and error
// cleared. RetryCount is deliberately untouched so automatic and manual
// attempts share a single budget.
func (m *Manager) RetryUpload(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.findLocked(id)
	if it == nil || it.Status != StatusFailed {
		return
	}
	it.Status = StatusPending
	it.Progress = 0
	it.Error = ""
	m.startLocked()
}

// ClearCompleted removes every completed and failed item, leaving pending
// and uploading items untouched.
func (m *Manager) ClearCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	for _, it := range m.items {
		if it.Status == StatusCompleted || it.Status == StatusFailed {
			continue
		}
		kept = append(kept, it)
	}
	m.items = kept
}

// Items returns a snapshot of the queue in insertion order.
func (m *Manager) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, len(m.items))
	for i, it := range m.items {
		out[i] = *it
	}
	return out
}

// Lookup returns a snapshot of one item by ID.
func (m *Manager) Lookup(id string) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it := m.findLocked(id); it != nil {
		return *it, true
	}
	return Item{}, false
}

// Wait blocks until the processing loop has drained all pending items.
func (m *Manager) Wait() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.processing {
		m.cond.Wait()
	}
}

// Close stops the queue and proactively aborts every outstanding upload.
// The manager accepts no further items.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, cancel := range m.inflight {
		delete(m.inflight, id)
		cancel()
	}
}

// startLocked launches the processing loop unless it is already running.
// Callers must hold m.mu.
func (m *Manager) startLocked() {
	if m.processing || m.closed {
		return
	}
	m.processing = true
	go m.processQueue()
}

func (m *Manager) findLocked(id string) *Item {
	for _, it := range m.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (m *Manager) firstPendingLocked() *Item {
	for _, it := range m.items {
		if it.Status == StatusPending {
			return it
		}
	}
	return nil
}

// setProgress records transport progress for an item. Progress only ever
// increases while the item is uploading.
func (m *Manager) setProgress(id string, pct int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.findLocked(id)
	if it == nil || it.Status != StatusUploading {
		return
	}
	if pct > 100 {
		pct = 100
	}
	if pct > it.Progress {
		it.Progress = pct
	}
}

// processQueue drains pending items one at a time, in insertion order. Each
// item settles (completed, failed, or requeued) before the next one starts.
func (m *Manager) processQueue() {
	for {
		m.mu.Lock()
		item := m.firstPendingLocked()
		if item == nil || m.closed {
			m.processing = false
			m.cond.Broadcast()
			m.mu.Unlock()
			return
		}

		item.Status = StatusUploading
		item.Progress = 0
		ctx, cancel := context.WithCancel(context.Background())
		m.inflight[item.ID] = cancel

		id := item.ID
		file := item.File
		category := item.Category
		cb := item.callbacks
		m.mu.Unlock()

		url, err := m.client.Upload(ctx, file, category, func(pct int) {
			m.setProgress(id, pct)
			if cb.OnProgress != nil {
				cb.OnProgress(pct)
			}
		})

		m.settle(id, url, err)
	}
}

// settle applies the outcome of one transport call and unregisters the
// item's cancellation handle. Notifications and callbacks run outside the
// lock.
func (m *Manager) settle(id, url string, err error) {
	var notify func()

	m.mu.Lock()
	// The handle leaves the registry exactly once per upload: here, unless
	// RemoveFromQueue or Close already claimed it.
	if cancel, ok := m.inflight[id]; ok {
		delete(m.inflight, id)
		cancel()
	}

	cur := m.findLocked(id)
	switch {
	case cur == nil:
		// Removed while uploading; nothing left to record.

	case err == nil:
		cur.Status = StatusCompleted
		cur.Progress = 100
		cur.Result = url
		cur.Error = ""
		kind := cur.Kind
		cb := cur.callbacks
		notify = func() {
			m.notifier.Success(kind, fmt.Sprintf("%s uploaded successfully", kind.Label()))
			if cb.OnSuccess != nil {
				cb.OnSuccess(url)
			}
		}

	default:
		cancelled := false
		retryable := true
		var terr *TransportError
		if errors.As(err, &terr) {
			cancelled = terr.Cause == CauseCancelled
			retryable = terr.Retryable()
		}

		switch {
		case cancelled:
			// Aborted mid-flight but still queued (teardown path): back to
			// pending without consuming the retry budget, no notification.
			cur.Status = StatusPending
			cur.Progress = 0
		case retryable && cur.RetryCount < cur.MaxRetries:
			cur.RetryCount++
			cur.Status = StatusPending
			cur.Progress = 0
		default:
			cur.Status = StatusFailed
			cur.Error = err.Error()
			kind := cur.Kind
			cb := cur.callbacks
			msg := err.Error()
			notify = func() {
				m.notifier.Error(kind, fmt.Sprintf("%s upload failed: %s", kind.Label(), msg))
				if cb.OnError != nil {
					cb.OnError(err)
				}
			}
		}
	}
	m.mu.Unlock()

	if notify != nil {
		notify()
	}
}
