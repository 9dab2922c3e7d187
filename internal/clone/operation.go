package clone

import (
	"context"
	"math"
	"sync"
	"time"
)

type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// recentErrors is how many error lines a snapshot carries.
const recentErrors = 10

// Snapshot is a point-in-time copy of an operation's progress.
type Snapshot struct {
	OperationID  string     `json:"operation_id"`
	SourceChatID int64      `json:"source_chat_id"`
	TargetChatID int64      `json:"target_chat_id"`
	Mode         Mode       `json:"mode"`
	Total        int        `json:"total"`
	Current      int        `json:"current"`
	Percentage   float64    `json:"percentage"`
	Status       Status     `json:"status"`
	Message      string     `json:"message,omitempty"`
	ClonedCount  int        `json:"cloned_count"`
	SkippedCount int        `json:"skipped_count"`
	Errors       []string   `json:"errors"`
	ErrorCount   int        `json:"error_count"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// Result summarises a finished operation.
type Result struct {
	OperationID   string `json:"operation_id"`
	SourceChatID  int64  `json:"source_chat_id"`
	TargetChatID  int64  `json:"target_chat_id"`
	Mode          Mode   `json:"mode"`
	IsEncrypted   bool   `json:"is_encrypted"`
	TotalMessages int    `json:"total_messages"`
	ClonedCount   int    `json:"cloned_count"`
	SkippedCount  int    `json:"skipped_count"`
	ErrorCount    int    `json:"error_count"`
	Status        Status `json:"status"`
}

type operation struct {
	id     string
	source int64
	target int64
	mode   Mode
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	total     int
	current   int
	cloned    int
	skipped   int
	errCount  int
	errors    []string
	maxErrors int
	status    Status
	message   string
	started   time.Time
	completed *time.Time
}

func (o *operation) setStatus(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = s
}

func (o *operation) advance(i int, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = i
	o.message = msg
}

func (o *operation) record(cloned, skipped bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cloned {
		o.cloned++
	}
	if skipped {
		o.skipped++
	}
}

// addError keeps the newest maxErrors lines; the count keeps growing.
func (o *operation) addError(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errCount++
	o.errors = append(o.errors, line)
	if over := len(o.errors) - o.maxErrors; over > 0 {
		o.errors = append(o.errors[:0], o.errors[over:]...)
	}
}

func (o *operation) finish(s Status, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = s
	o.completed = &at
}

func (o *operation) snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	var pct float64
	if o.total > 0 {
		pct = math.Round(float64(o.current)/float64(o.total)*1000) / 10
	}
	from := len(o.errors) - recentErrors
	if from < 0 {
		from = 0
	}
	errs := append([]string{}, o.errors[from:]...)

	return Snapshot{
		OperationID:  o.id,
		SourceChatID: o.source,
		TargetChatID: o.target,
		Mode:         o.mode,
		Total:        o.total,
		Current:      o.current,
		Percentage:   pct,
		Status:       o.status,
		Message:      o.message,
		ClonedCount:  o.cloned,
		SkippedCount: o.skipped,
		Errors:       errs,
		ErrorCount:   o.errCount,
		StartedAt:    o.started,
		CompletedAt:  o.completed,
	}
}

func (o *operation) result() *Result {
	s := o.snapshot()
	return &Result{
		OperationID:   s.OperationID,
		SourceChatID:  s.SourceChatID,
		TargetChatID:  s.TargetChatID,
		Mode:          s.Mode,
		IsEncrypted:   s.Mode == ModeEncrypted,
		TotalMessages: s.Total,
		ClonedCount:   s.ClonedCount,
		SkippedCount:  s.SkippedCount,
		ErrorCount:    s.ErrorCount,
		Status:        s.Status,
	}
}
