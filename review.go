package main

import (
	"sync"
	"time"
)

// PendingReview tracks one posted extraction result awaiting a human
// decision. The ID is the Slack timestamp of the result message, which is
// what reaction events carry.
type PendingReview struct {
	ID            string
	Result        ExtractionResult
	ImageData     []byte
	ChannelID     string
	StatusMsgID   string
	Content       string
	CreatedAt     time.Time
	AutoResolveAt time.Time

	processed          bool
	reanalysisInFlight bool
	timer              *time.Timer
}

// ReanalysisStatus reports the outcome of TryBeginReanalysis.
type ReanalysisStatus int

const (
	ReanalysisStarted ReanalysisStatus = iota
	ReanalysisAlreadyRunning
	ReanalysisEntryClaimed
	ReanalysisNotFound
)

// ReviewTable holds all reviews currently awaiting a disposition. Claims
// are atomic: exactly one of a human reaction or the timeout wins.
type ReviewTable struct {
	mu      sync.Mutex
	entries map[string]*PendingReview
}

func NewReviewTable() *ReviewTable {
	return &ReviewTable{entries: make(map[string]*PendingReview)}
}

func (t *ReviewTable) Add(p *PendingReview) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[p.ID] = p
}

func (t *ReviewTable) Get(id string) (*PendingReview, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	return p, ok
}

// TryMarkProcessed claims the entry for a terminal disposition. It returns
// false when the entry is unknown, already claimed, or mid-reanalysis.
func (t *ReviewTable) TryMarkProcessed(id string) (*PendingReview, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if !ok || p.processed || p.reanalysisInFlight {
		return nil, false
	}
	p.processed = true
	if p.timer != nil {
		p.timer.Stop()
	}
	return p, true
}

// TryBeginReanalysis marks the entry as mid-reanalysis. The reanalysis
// guard is checked before the processed claim so a repeat request while one
// is running reports AlreadyRunning rather than Claimed.
func (t *ReviewTable) TryBeginReanalysis(id string) (*PendingReview, ReanalysisStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if !ok {
		return nil, ReanalysisNotFound
	}
	if p.reanalysisInFlight {
		return nil, ReanalysisAlreadyRunning
	}
	if p.processed {
		return nil, ReanalysisEntryClaimed
	}
	p.processed = true
	p.reanalysisInFlight = true
	if p.timer != nil {
		p.timer.Stop()
	}
	return p, ReanalysisStarted
}

// AbortReanalysis releases a failed reanalysis so the entry can be claimed
// again, by a human or by a later reanalysis request.
func (t *ReviewTable) AbortReanalysis(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if !ok {
		return
	}
	p.processed = false
	p.reanalysisInFlight = false
}

func (t *ReviewTable) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.entries[id]; ok && p.timer != nil {
		p.timer.Stop()
	}
	delete(t.entries, id)
}

// AppendContent appends a line to the stored message body and returns the
// new body, or "" when the entry is gone.
func (t *ReviewTable) AppendContent(id, line string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if !ok {
		return ""
	}
	p.Content = p.Content + "\n" + line
	return p.Content
}

func (t *ReviewTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Arm schedules the auto-resolve callback for the entry. The callback runs
// on the timer goroutine and must claim the entry itself; a claim that
// already happened makes the callback a no-op.
func (t *ReviewTable) Arm(id string, delay time.Duration, fire func(id string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if !ok {
		return
	}
	p.AutoResolveAt = time.Now().Add(delay)
	p.timer = time.AfterFunc(delay, func() { fire(id) })
}
