package apogee

import (
	"fmt"
	"sync"
	"testing"
)

// testLogger records log entries and forwards them to the test output.
// Error-level entries are recorded rather than failing the test, since the
// orchestrators log errors for conditions tests deliberately provoke.
type testLogger struct {
	t  *testing.T
	mu sync.Mutex

	entries []string
}

func newTestLogger(t *testing.T) *testLogger {
	return &testLogger{t: t}
}

func (l *testLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := fmt.Sprintf("%s: %s %v", level, msg, args)
	l.entries = append(l.entries, entry)
	if l.t != nil {
		l.t.Log(entry)
	}
}

func (l *testLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args) }
func (l *testLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args) }
func (l *testLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args) }
func (l *testLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args) }
