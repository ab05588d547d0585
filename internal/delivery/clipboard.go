package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// The path arrives as argv, never inside the script text.
var appleScript = []string{
	"on run argv",
	"set theFile to POSIX file (item 1 of argv)",
	"set the clipboard to (read theFile as JPEG picture)",
	"end run",
}

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// clipboardWaitDelay bounds how long Run waits for stderr after the command exits.
// xclip forks a child that keeps serving the selection and holds inherited pipes open.
const clipboardWaitDelay = time.Second

// execRunner runs a command and returns its stderr. Stdout is discarded.
type execRunner struct {
	waitDelay time.Duration
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = nil
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.waitDelay

	err := cmd.Run()
	if errors.Is(err, exec.ErrWaitDelay) {
		// The command itself succeeded; a background child still holds stderr.
		err = nil
	}
	return stderr.Bytes(), err
}

// OSClipboard copies JPEG files to the clipboard with osascript on macOS and xclip on Linux.
type OSClipboard struct {
	goos   string
	runner commandRunner
}

// NewOSClipboard returns a clipboard bridge for the running platform.
func NewOSClipboard() *OSClipboard {
	return &OSClipboard{goos: runtime.GOOS, runner: execRunner{waitDelay: clipboardWaitDelay}}
}

// CopyImage places the JPEG at imagePath on the clipboard.
func (c *OSClipboard) CopyImage(ctx context.Context, imagePath string) error {
	name, args, err := c.command(imagePath)
	if err != nil {
		return err
	}
	out, err := c.runner.Run(ctx, name, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (c *OSClipboard) command(imagePath string) (string, []string, error) {
	switch c.goos {
	case "darwin":
		args := make([]string, 0, 2*len(appleScript)+1)
		for _, line := range appleScript {
			args = append(args, "-e", line)
		}
		return "osascript", append(args, imagePath), nil
	case "linux":
		return "xclip", []string{"-selection", "clipboard", "-t", "image/jpeg", "-i", imagePath}, nil
	default:
		return "", nil, fmt.Errorf("clipboard on %s: %w", c.goos, ErrUnsupported)
	}
}
