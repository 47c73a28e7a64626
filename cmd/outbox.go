package cmd

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOutboxFull is returned by Enqueue when the queue has no room.
var ErrOutboxFull = errors.New("outbox full")

// SendRequest asks for a message to be sent. ID is optional and is filled
// in by Enqueue.
type SendRequest struct {
	ID      string `json:"id,omitempty"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendState is the progress of a queued request.
type SendState string

const (
	StateQueued SendState = "queued"
	StateSent   SendState = "sent"
	StateFailed SendState = "failed"
)

// SendStatus reports what happened to a queued request.
type SendStatus struct {
	ID         string    `json:"id"`
	To         string    `json:"to"`
	State      SendState `json:"state"`
	References []int     `json:"references,omitempty"`
	Error      string    `json:"error,omitempty"`
	Updated    time.Time `json:"updated"`
}

// Outbox sends queued requests one at a time. Rate limiting and retries
// happen in the device.
type Outbox struct {
	device Device
	logger *slog.Logger
	queue  chan SendRequest

	// OnDone, when set, is called after every request completes.
	OnDone func(SendStatus)

	mu     sync.Mutex
	status map[string]SendStatus
	order  []string
	keep   int
}

func NewOutbox(device Device, logger *slog.Logger, size int) *Outbox {
	return &Outbox{
		device: device,
		logger: logger,
		queue:  make(chan SendRequest, size),
		status: make(map[string]SendStatus),
		keep:   max(size, 1) * 4,
	}
}

// Enqueue queues req and returns its id.
func (o *Outbox) Enqueue(req SendRequest) (string, error) {
	if req.ID == "" {
		h := sha1.Sum(fmt.Appendf(nil, "%s|%s|%d", req.To, req.Message, time.Now().UnixNano()))
		req.ID = hex.EncodeToString(h[:8])
	}

	o.setStatus(SendStatus{ID: req.ID, To: req.To, State: StateQueued})

	select {
	case o.queue <- req:
		return req.ID, nil
	default:
		o.setStatus(SendStatus{ID: req.ID, To: req.To, State: StateFailed, Error: ErrOutboxFull.Error()})
		return "", ErrOutboxFull
	}
}

// Status returns the last known state of id.
func (o *Outbox) Status(id string) (SendStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.status[id]
	return st, ok
}

// Run sends queued requests until ctx ends.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-o.queue:
			o.send(ctx, req)
		}
	}
}

func (o *Outbox) send(ctx context.Context, req SendRequest) {
	st := SendStatus{ID: req.ID, To: req.To}

	refs, err := o.device.SendSMS(ctx, req.To, req.Message)
	if err != nil {
		o.logger.Error("Failed to send SMS", "id", req.ID, "to", req.To, "error", err)
		st.State = StateFailed
		st.Error = err.Error()
	} else {
		o.logger.Info("SMS sent successfully", "id", req.ID, "to", req.To, "references", refs)
		st.State = StateSent
		st.References = refs
	}

	st = o.setStatus(st)
	if o.OnDone != nil {
		o.OnDone(st)
	}
}

func (o *Outbox) setStatus(st SendStatus) SendStatus {
	st.Updated = time.Now()

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.status[st.ID]; !ok {
		o.order = append(o.order, st.ID)
		if len(o.order) > o.keep {
			delete(o.status, o.order[0])
			o.order = o.order[1:]
		}
	}
	o.status[st.ID] = st
	return st
}
