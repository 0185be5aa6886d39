package delivery

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

type Notification struct {
	Title string
	Body  string
	Level string
	At    time.Time
}

type Notifier interface {
	Send(Notification) error
}

type NoopNotifier struct{}

func (NoopNotifier) Send(Notification) error { return nil }

// ExecNotifier shells out to the desktop notification tool of the host.
type ExecNotifier struct{}

func (ExecNotifier) Send(n Notification) error {
	switch runtime.GOOS {
	case "linux":
		args := []string{n.Title, n.Body}
		if n.Level == "alarm" {
			args = append([]string{"--urgency=critical"}, args...)
		}
		return exec.Command("notify-send", args...).Run()
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(n.Body), escapeAppleScript(n.Title))
		return exec.Command("osascript", "-e", script).Run()
	default:
		return nil
	}
}

func escapeAppleScript(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// Ringer produces one pulse of the alarm sound.
type Ringer interface {
	Ring() error
}

// BellRinger writes the terminal bell to w.
type BellRinger struct {
	mu sync.Mutex
	W  io.Writer
}

func (b *BellRinger) Ring() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.W == nil {
		return nil
	}
	_, err := io.WriteString(b.W, "\a")
	return err
}

type NoopRinger struct{}

func (NoopRinger) Ring() error { return nil }

// Launcher opens a quick-launch target: an application name, a path or a URL.
type Launcher interface {
	Launch(target string) error
}

// ExecLauncher starts targets with the platform opener. The zero value uses
// the host's GOOS, PATH and exec.Command.
type ExecLauncher struct {
	GOOS     string
	LookPath func(file string) (string, error)
	Command  func(name string, args ...string) *exec.Cmd
}

// Launch reports an error when the target could not be opened. Openers run
// to completion so a missing application surfaces as a non-zero exit;
// executables found on PATH are started and reaped in the background.
func (l ExecLauncher) Launch(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("delivery: empty launch target")
	}
	goos, lookPath, command := l.GOOS, l.LookPath, l.Command
	if goos == "" {
		goos = runtime.GOOS
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if command == nil {
		command = exec.Command
	}
	switch goos {
	case "linux":
		if path, err := lookPath(target); err == nil {
			return startDetached(command(path))
		}
		return runOpener(command("xdg-open", target))
	case "darwin":
		if strings.Contains(target, "://") {
			return runOpener(command("open", target))
		}
		return runOpener(command("open", "-a", target))
	case "windows":
		return runOpener(command("cmd", "/c", "start", "", target))
	default:
		return fmt.Errorf("delivery: launching unsupported on %s", goos)
	}
}

func runOpener(cmd *exec.Cmd) error {
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("delivery: %s: %w", cmd.Path, err)
	}
	return nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("delivery: start %s: %w", cmd.Path, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

type NoopLauncher struct{}

func (NoopLauncher) Launch(string) error { return nil }
