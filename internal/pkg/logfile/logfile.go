package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clarity-app/core/internal/pkg/prettylog"
)

const (
	EnvLogDir          = "CLARITY_LOG_DIR"
	EnvLogRotateSizeMB = "CLARITY_LOG_ROTATE_SIZE_MB"
	EnvLogRotateKeep   = "CLARITY_LOG_ROTATE_KEEP"

	defaultSubBufSize  = 128
	defaultLogFilePerm = 0o644
	defaultLogDirPerm  = 0o755
	defaultRotateKeep  = 5
)

var processStartup = time.Now()

// ResolveDir resolves the log directory path.
func ResolveDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvLogDir)); dir != "" {
		return dir
	}

	candidates := make([]string, 0, 4)
	if strings.EqualFold(strings.TrimSpace(os.Getenv("CLARITY_ENV")), "development") {
		candidates = append(candidates, filepath.Join(".", "tmp", "log"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		candidates = append(candidates, filepath.Join(home, ".clarity", "log"))
	}
	candidates = append(candidates, filepath.Join(".", "logs"))
	candidates = append(candidates, filepath.Join(".", "tmp", "log"))

	for _, dir := range candidates {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return dir
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return filepath.Join(".", "logs")
}

// TodayFilename returns the daily log filename.
func TodayFilename(now time.Time) string {
	return "core_" + now.Format("2006-01-02") + ".log"
}

// TodayFilePath returns today's log file path.
func TodayFilePath(now time.Time) string {
	return filepath.Join(ResolveDir(), TodayFilename(now))
}

// SnapshotFilesSinceStartup lists log files written to since the process
// started, today's file last. Used by the realtime log stream to replay
// recent output to a newly attached client.
func SnapshotFilesSinceStartup(now time.Time) ([]string, error) {
	dir := ResolveDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	today := TodayFilename(now)
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "core_") || !strings.Contains(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if e.Name() == today || info.ModTime().After(processStartup) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	sort.Slice(paths, func(i, j int) bool {
		// Today's live file sorts last so replay ends at the tail.
		if filepath.Base(paths[i]) == today {
			return false
		}
		if filepath.Base(paths[j]) == today {
			return true
		}
		return paths[i] < paths[j]
	})
	return paths, nil
}

func rotateSizeBytes() int64 {
	raw := strings.TrimSpace(os.Getenv(EnvLogRotateSizeMB))
	if raw == "" {
		return 0
	}
	mb, err := strconv.Atoi(raw)
	if err != nil || mb <= 0 {
		return 0
	}
	return int64(mb) * 1024 * 1024
}

func rotateKeep() int {
	raw := strings.TrimSpace(os.Getenv(EnvLogRotateKeep))
	if raw == "" {
		return defaultRotateKeep
	}
	keep, err := strconv.Atoi(raw)
	if err != nil || keep < 1 {
		return defaultRotateKeep
	}
	return keep
}

// Writer appends to the daily log file, rotating by size, and pushes
// realtime frames to subscribers.
type Writer struct {
	mu  sync.Mutex
	dir string
}

// NewWriter creates a log writer rooted at the resolved log directory.
func NewWriter() (*Writer, error) {
	dir := ResolveDir()
	if err := os.MkdirAll(dir, defaultLogDirPerm); err != nil {
		return nil, err
	}
	_ = os.Setenv(EnvLogDir, dir)
	return &Writer{dir: dir}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, TodayFilename(time.Now()))
	w.maybeRotate(path, int64(len(p)))

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultLogFilePerm)
	if err != nil {
		return 0, err
	}

	n, writeErr := file.Write(p)
	closeErr := file.Close()

	if n > 0 {
		Publish(string(p[:n]))
	}

	if writeErr != nil {
		return n, writeErr
	}
	if closeErr != nil {
		return n, closeErr
	}
	return n, nil
}

// maybeRotate renames the live file to a numbered sibling when the next
// write would exceed the configured size limit, then prunes old siblings.
func (w *Writer) maybeRotate(path string, incoming int64) {
	limit := rotateSizeBytes()
	if limit <= 0 {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.Size()+incoming <= limit {
		return
	}

	base := strings.TrimSuffix(path, ".log")
	idx := 1
	for {
		candidate := fmt.Sprintf("%s.%d.log", base, idx)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			_ = os.Rename(path, candidate)
			break
		}
		idx++
	}

	keep := rotateKeep()
	for i := idx - keep; i >= 1; i-- {
		_ = os.Remove(fmt.Sprintf("%s.%d.log", base, i))
	}
}

func (w *Writer) Sync() error {
	return nil
}

type streamHub struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]chan string
}

func newStreamHub() *streamHub {
	return &streamHub{
		subscribers: make(map[int]chan string),
	}
}

var globalStreamHub = newStreamHub()

// Subscribe subscribes realtime log frames.
func Subscribe(buffer int) (int, <-chan string) {
	if buffer <= 0 {
		buffer = defaultSubBufSize
	}
	return globalStreamHub.subscribe(buffer)
}

// Unsubscribe unsubscribes realtime log frames.
func Unsubscribe(id int) {
	globalStreamHub.unsubscribe(id)
}

// Publish pushes a log frame to all current subscribers.
func Publish(message string) {
	if message == "" {
		return
	}
	globalStreamHub.publish(message)
}

func (h *streamHub) subscribe(buffer int) (int, <-chan string) {
	ch := make(chan string, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *streamHub) unsubscribe(id int) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if ok {
		close(ch)
	}
}

func (h *streamHub) publish(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- message:
		default:
		}
	}
}

// NewZapLogger creates a zap logger teeing pretty console output and the
// daily log file, with realtime streaming of file frames.
func NewZapLogger() (*zap.Logger, error) {
	writer, err := NewWriter()
	if err != nil {
		return nil, err
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)

	fileEncoderConfig := zap.NewProductionEncoderConfig()
	fileEncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")

	core := zapcore.NewTee(
		zapcore.NewCore(prettylog.NewEncoder(prettylog.ShouldColor()), zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncoderConfig), zapcore.AddSync(writer), level),
	)

	logger := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
	_ = zap.RedirectStdLog(logger)
	return logger, nil
}
