package encoding

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"encodefleet/internal/logging"
	"encodefleet/internal/services"
)

const (
	stderrTailBytes       = 2048
	progressLogInterval   = 30 * time.Second
	progressOutTimeMicros = "out_time_us"
)

// encoderArgs builds the argument list for one output.
func encoderArgs(source string, spec OutputSpec, target string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-nostats", "-progress", "pipe:1", "-i", source}
	args = append(args, spec.Args...)
	return append(args, target)
}

// runEncoder executes binary and logs sampled progress from its -progress
// stream. The returned error carries the tail of stderr.
func runEncoder(ctx context.Context, logger *slog.Logger, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "encoding", "attach stdout", "", err)
	}
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoding", "start encoder", fmt.Sprintf("could not start %s", binary), err)
	}

	// stdout must be drained before Wait.
	logProgress(logger, stdout)

	err = cmd.Wait()
	switch {
	case err == nil:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "encoding", "run encoder", "job timeout reached", ctx.Err())
	case errors.Is(ctx.Err(), context.Canceled):
		return services.Wrap(services.ErrCanceled, "encoding", "run encoder", "execution cancelled", ctx.Err())
	}
	detail := strings.TrimSpace(stderr.String())
	if detail == "" {
		detail = "encoder exited with an error"
	}
	return services.Wrap(services.ErrExternalTool, "encoding", "run encoder", detail, err)
}

func logProgress(logger *slog.Logger, r io.Reader) {
	scanner := bufio.NewScanner(r)
	var last time.Time
	var outTime time.Duration
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case progressOutTimeMicros:
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				outTime = time.Duration(us) * time.Microsecond
			}
		case "progress":
			if value != "end" && time.Since(last) < progressLogInterval {
				continue
			}
			last = time.Now()
			logger.Debug("encode progress",
				logging.Duration("encoded", outTime),
				logging.String("state", value),
			)
		}
	}
	// Drain whatever is left so the encoder never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
