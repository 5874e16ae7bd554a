// Package notify posts desktop notifications for capture lifecycle events.
// On macOS it shells out to osascript; elsewhere it degrades to the diagnostic
// log so the daemon stays portable.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/snapmark/snapmark/internal/diaglog"
)

// Notifier posts user-facing notifications.
type Notifier struct {
	logger *diaglog.Logger
	// run is swappable for tests.
	run func(script string) error
}

// New returns a Notifier that logs through logger.
func New(logger *diaglog.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		run:    runOsascript,
	}
}

// Send posts a notification. Failures are logged, never fatal: a missing
// notification must not break a capture in flight.
func (n *Notifier) Send(title, message string) {
	if runtime.GOOS != "darwin" {
		n.log("notification_skipped", title, message, "")
		return
	}

	script := fmt.Sprintf(`display notification "%s" with title "%s"`,
		escapeAppleScript(message), escapeAppleScript(title))
	if err := n.run(script); err != nil {
		n.log("notification_failed", title, message, err.Error())
		return
	}
	n.log("notification_sent", title, message, "")
}

func (n *Notifier) log(event, title, message, reason string) {
	if n.logger == nil {
		return
	}
	n.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     event,
		Reason:    reason,
		Payload:   map[string]string{"title": title, "message": message},
	})
}

func runOsascript(script string) error {
	cmd := exec.Command("osascript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("osascript failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// escapeAppleScript escapes quotes and backslashes for AppleScript string
// literals.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
