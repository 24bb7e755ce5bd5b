// Package inference feeds classification results to the responder.
// The on-device engine is external; Replay reads recorded results from a
// text file or stdin, one per line:
//
//	<timestamp_ms> <label> <score> <new>
//
// Blank lines and lines starting with # are skipped. <new> accepts any
// boolean spelling (1, 0, true, false, t, f).
package inference

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cast"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// Config configures a Replay.
type Config struct {
	FileSys afero.Fs
	// Path is the replay file, or Stdin.
	Path string
	// Stdin is read when Path is Stdin. Defaults to os.Stdin.
	Stdin io.Reader
	// Realtime spaces events by the difference of their timestamps.
	Realtime bool
}

// Replay streams recorded inference results.
type Replay struct {
	src      io.ReadCloser
	name     string
	realtime bool
	sleep    func(ctx context.Context, d time.Duration) error
}

// New opens the replay source.
func New(cfg *Config) (*Replay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	r := &Replay{name: cfg.Path, realtime: cfg.Realtime, sleep: sleepCtx}

	if cfg.Path == Stdin || cfg.Path == "" {
		in := cfg.Stdin
		if in == nil {
			in = os.Stdin
		}
		r.src = io.NopCloser(in)
		r.name = "stdin"
		return r, nil
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}
	f, err := cfg.FileSys.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	r.src = f
	return r, nil
}

// Name describes the source for logging.
func (r *Replay) Name() string {
	return r.name
}

// Run sends every event to out until the source is exhausted, a line fails
// to parse, or ctx is cancelled. It does not close out.
func (r *Replay) Run(ctx context.Context, out chan<- logic.Event) error {
	sc := bufio.NewScanner(r.src)
	lineNo := 0
	var prev int32
	first := true

	for sc.Scan() {
		lineNo++
		ev, ok, err := ParseLine(sc.Text())
		if err != nil {
			return fmt.Errorf("%s:%d: %w", r.name, lineNo, err)
		}
		if !ok {
			continue
		}

		if r.realtime && !first && ev.Timestamp > prev {
			if err := r.sleep(ctx, time.Duration(ev.Timestamp-prev)*time.Millisecond); err != nil {
				return err
			}
		}
		first = false
		prev = ev.Timestamp

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

// Close releases the source.
func (r *Replay) Close() error {
	return r.src.Close()
}

// ParseLine parses one replay line. ok is false for blank and comment lines.
func ParseLine(line string) (ev logic.Event, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return logic.Event{}, false, nil
	}

	fields := strings.Fields(line)
	if len(fields) != 4 {
		return logic.Event{}, false, fmt.Errorf("want 4 fields, got %d", len(fields))
	}

	ts, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return logic.Event{}, false, fmt.Errorf("timestamp: %w", err)
	}
	score, err := strconv.ParseUint(fields[2], 10, 8)
	if err != nil {
		return logic.Event{}, false, fmt.Errorf("score: %w", err)
	}
	isNew, err := cast.ToBoolE(fields[3])
	if err != nil {
		return logic.Event{}, false, fmt.Errorf("new flag: %w", err)
	}

	return logic.Event{
		Timestamp: int32(ts),
		Label:     fields[1],
		Score:     uint8(score),
		IsNew:     isNew,
	}, true, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDone reports whether err only signals a cancelled run.
func IsDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
