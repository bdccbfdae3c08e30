package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ProcessLogs captures the log of one pair's run, so the outcome report can
// replay everything that happened to that pair.
type ProcessLogs struct {
	mu   sync.Mutex
	logs []LogEntry
}

type LogEntry struct {
	LogAt time.Time
	Log   string
}

func NewProcessLogs() *ProcessLogs {
	return &ProcessLogs{
		logs: []LogEntry{},
	}
}

func (p *ProcessLogs) Log(s string, args ...any) {
	entry := LogEntry{
		LogAt: time.Now(),
		Log:   fmt.Sprintf(s, args...),
	}
	p.mu.Lock()
	p.logs = append(p.logs, entry)
	p.mu.Unlock()
}

func (p *ProcessLogs) GetLogs() []LogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]LogEntry, len(p.logs))
	copy(out, p.logs)
	return out
}

// String renders the captured log as timestamped lines, for durable
// storage alongside the run's outcome.
func (p *ProcessLogs) String() string {
	var b strings.Builder
	for _, entry := range p.GetLogs() {
		fmt.Fprintf(&b, "%s  %s\n", entry.LogAt.Format("15:04:05"), entry.Log)
	}
	return b.String()
}
