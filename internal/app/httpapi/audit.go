package httpapi

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// auditEntry records one swap attempt for the operator-facing audit trail.
type auditEntry struct {
	Time     time.Time `json:"time"`
	User     string    `json:"user"`
	TokenOut string    `json:"tokenOut"`
	AmountIn string    `json:"amountIn"`
	Outcome  string    `json:"outcome"`
	TxHash   string    `json:"txHash,omitempty"`
	Status   int       `json:"status"`
}

type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    auditSink
}

type auditSink interface {
	Write(entry auditEntry) error
}

func newAuditLog(max int, sink auditSink) *auditLog {
	if max <= 0 {
		max = 200
	}
	return &auditLog{max: max, sink: sink}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		// Best-effort persistence; ignore errors to avoid impacting request flow.
		_ = l.sink.Write(entry)
	}
}

func (l *auditLog) list() []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]auditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// listUser returns the newest entries belonging to one user. The trail is
// per-user on the wire; callers never see other users' swaps.
func (l *auditLog) listUser(user string, limit int) []auditEntry {
	if limit <= 0 || limit > l.max {
		limit = l.max
	}
	own := make([]auditEntry, 0, limit)
	for _, entry := range l.list() {
		if entry.User == user {
			own = append(own, entry)
		}
	}
	if len(own) <= limit {
		return own
	}
	return own[len(own)-limit:]
}

// fileAuditSink appends audit entries as JSONL.
type fileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

func newFileAuditSink(path string) (*fileAuditSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &fileAuditSink{file: f}, nil
}

func (s *fileAuditSink) Write(entry auditEntry) error {
	if s == nil || s.file == nil {
		return nil
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}
