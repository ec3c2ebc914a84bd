// Package schedule installs a recurring sync job into the user's
// crontab. The manager owns every crontab line carrying its command
// signature and reconciles them against the desired schedule, so
// repeated installs update in place instead of appending duplicates.
package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Valid interval range in minutes, up to a day. See `man 5 crontab`.
const (
	minIntervalMinutes = 1
	maxIntervalMinutes = 1440
)

const minutesPerDay = 1440

// ErrInvalidInterval is returned for intervals outside 1..=1440 minutes.
var ErrInvalidInterval = fmt.Errorf("interval must be between %d and %d minutes",
	minIntervalMinutes, maxIntervalMinutes)

// ErrCrontabUnavailable indicates the crontab binary is not installed.
var ErrCrontabUnavailable = errors.New("crontab is not installed")

// CrontabError wraps a failed crontab invocation with its captured
// diagnostic output.
type CrontabError struct {
	Op     string // "read" or "write"
	Output string
	Err    error
}

func (e *CrontabError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("crontab %s failed: %v: %s", e.Op, e.Err, strings.TrimSpace(e.Output))
	}
	return fmt.Sprintf("crontab %s failed: %v", e.Op, e.Err)
}

func (e *CrontabError) Unwrap() error { return e.Err }

// CommandRunner executes one external command, feeding it stdin and
// returning captured stdout and stderr. Tests substitute a fake.
type CommandRunner interface {
	Run(ctx context.Context, stdin string, name string, args ...string) (stdout, stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin string, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Manager installs and updates the recurring sync job for one binary.
type Manager struct {
	exePath string
	runner  CommandRunner
}

// NewManager creates a Manager scheduling `exePath sync`. exePath should
// be the absolute path of the running binary.
func NewManager(exePath string) *Manager {
	return &Manager{exePath: exePath, runner: execRunner{}}
}

// NewManagerWithRunner is like NewManager with a custom command runner.
func NewManagerWithRunner(exePath string, runner CommandRunner) *Manager {
	return &Manager{exePath: exePath, runner: runner}
}

// Signature returns the command string identifying this manager's
// crontab entries.
func (m *Manager) Signature() string {
	return m.exePath + " sync"
}

// Install schedules the sync command to run every intervalMinutes
// minutes and returns a human-readable description of the schedule.
// Installing is idempotent: existing entries for this binary are
// replaced, and an already-correct crontab is left untouched.
func (m *Manager) Install(ctx context.Context, intervalMinutes int) (string, error) {
	exprs, human, err := cronLines(intervalMinutes)
	if err != nil {
		return "", err
	}

	existing, err := m.readCrontab(ctx)
	if err != nil {
		return "", err
	}

	signature := m.Signature()
	desired := make([]string, len(exprs))
	for i, expr := range exprs {
		desired[i] = expr + " " + signature
	}

	// Desired state: every line not owned by us, then our block.
	var next []string
	for _, line := range splitLines(existing) {
		if !strings.Contains(line, signature) {
			next = append(next, line)
		}
	}
	next = append(next, desired...)

	if equalLines(splitLines(existing), next) {
		log.Debug().Str("schedule", human).Msg("Crontab already up to date")
		return human, nil
	}

	content := strings.Join(next, "\n") + "\n"
	if err := m.writeCrontab(ctx, content); err != nil {
		return "", err
	}

	log.Info().Str("schedule", human).Int("lines", len(desired)).Msg("Crontab updated")
	return human, nil
}

func (m *Manager) readCrontab(ctx context.Context) (string, error) {
	stdout, stderr, err := m.runner.Run(ctx, "", "crontab", "-l")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrCrontabUnavailable
		}
		// An empty crontab is reported as an error by crontab -l.
		if strings.Contains(stderr, "no crontab") {
			return "", nil
		}
		return "", &CrontabError{Op: "read", Output: stderr, Err: err}
	}
	return stdout, nil
}

func (m *Manager) writeCrontab(ctx context.Context, content string) error {
	_, stderr, err := m.runner.Run(ctx, content, "crontab", "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return ErrCrontabUnavailable
		}
		return &CrontabError{Op: "write", Output: stderr, Err: err}
	}
	return nil
}

// cronLines maps an interval in minutes to crontab schedule expressions
// plus a human-readable description.
//
// Intervals that fit a single classic expression use it: minute steps
// below the hour, "0 * * * *" for hourly, and an hour step for
// multiples of an hour. Other intervals enumerate their run times
// across a day anchored at midnight and emit one expression per
// distinct minute-of-hour, which repeats exactly whenever the interval
// divides a day evenly; otherwise the cycle restarts at midnight.
func cronLines(minutes int) ([]string, string, error) {
	switch {
	case minutes < minIntervalMinutes || minutes > maxIntervalMinutes:
		return nil, "", fmt.Errorf("%w, got %d", ErrInvalidInterval, minutes)
	case minutes < 60:
		return []string{fmt.Sprintf("*/%d * * * *", minutes)},
			"every " + plural(minutes, "minute"), nil
	case minutes == 60:
		return []string{"0 * * * *"}, "every hour", nil
	case minutes%60 == 0:
		hours := minutes / 60
		return []string{fmt.Sprintf("0 */%d * * *", hours)},
			"every " + plural(hours, "hour"), nil
	default:
		human := fmt.Sprintf("every %s and %s",
			plural(minutes/60, "hour"), plural(minutes%60, "minute"))
		return enumeratedLines(minutes), human, nil
	}
}

// plural formats a count with its unit, e.g. "1 minute", "5 minutes".
func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// enumeratedLines walks the day in interval steps and groups run times
// by minute-of-hour, producing expressions like
// "30 1,4,7,10,13,16,19,22 * * *".
func enumeratedLines(interval int) []string {
	hoursByMinute := make(map[int][]int)
	for t := 0; t < minutesPerDay; t += interval {
		minute := t % 60
		hoursByMinute[minute] = append(hoursByMinute[minute], t/60)
	}

	minutes := make([]int, 0, len(hoursByMinute))
	for minute := range hoursByMinute {
		minutes = append(minutes, minute)
	}
	sort.Ints(minutes)

	lines := make([]string, 0, len(minutes))
	for _, minute := range minutes {
		hours := make([]string, len(hoursByMinute[minute]))
		for i, h := range hoursByMinute[minute] {
			hours[i] = strconv.Itoa(h)
		}
		lines = append(lines, fmt.Sprintf("%d %s * * *", minute, strings.Join(hours, ",")))
	}
	return lines
}

// splitLines breaks crontab output into lines, dropping the trailing
// empty line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
