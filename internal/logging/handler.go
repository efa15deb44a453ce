package logging

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a worker output line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent worker lines kept for crash reports.
	MaxBufferedLines = 100
)

// WorkerLogHandler handles stderr output from the office worker process.
// It buffers recent lines so an unexpected worker death can be reported
// with context, and logs lines at a level inferred from their content.
type WorkerLogHandler struct {
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	total  int
	mu     sync.Mutex
}

// NewWorkerLogHandler creates a handler for the worker's stderr stream.
func NewWorkerLogHandler(logger *slog.Logger, verbose bool) *WorkerLogHandler {
	return &WorkerLogHandler{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// HandleReader reads from r and processes each line until EOF.
// This should be run in a goroutine.
func (h *WorkerLogHandler) HandleReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, MaxLineLength)
	scanner.Buffer(buf, MaxLineLength)

	for scanner.Scan() {
		h.HandleLine(scanner.Text())
	}
}

// HandleLine processes a single line of worker output.
func (h *WorkerLogHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.total++
	h.mu.Unlock()

	level := classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(context.Background(), level, "worker_output", "line", line)
}

// classifyLine determines the log level for a line of office output.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "terminated due to signal") ||
		strings.Contains(lower, "crash") {
		return slog.LevelError
	}

	if strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") ||
		strings.Contains(lower, "cannot open") {
		return slog.LevelWarn
	}

	// The rest is startup noise (javaldx warnings, font scans, ...)
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *WorkerLogHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > h.total {
		n = h.total
	}

	lines := make([]string, 0, n)
	start := h.bufIdx - n
	if start < 0 {
		start += MaxBufferedLines
	}
	for i := 0; i < n; i++ {
		lines = append(lines, h.buffer[(start+i)%MaxBufferedLines])
	}
	return lines
}
