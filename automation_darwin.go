//go:build darwin

package xlvba

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// The host's AppleScript dictionary does not expose the VBProject model, so
// the built-in "VBA Insert File" dialog is driven through System Events
// keystrokes. The 300 second timeout is enforced by the scripting bridge.
const importModuleScript = `
on run argv
  with timeout of 300 seconds
    set targetPath to item 1 of argv
    set modulePath to item 2 of argv

    tell application "Microsoft Excel"
      activate
      set scratchWb to missing value
      if (count of workbooks) is 0 then
        make new workbook
        set scratchWb to active workbook
      end if
      try
        set display alerts to false
      end try
      open POSIX file targetPath
    end tell

    delay 0.6

    tell application "Microsoft Excel"
      set wb to active workbook
    end tell

    tell application "Microsoft Excel"
      activate
      set d to get dialog dialog vba insert file
      show d
    end tell

    delay 0.6

    tell application "System Events"
      tell process "Microsoft Excel"
        set frontmost to true
        keystroke "G" using {command down, shift down}
        delay 0.2
        keystroke modulePath
        keystroke return
        delay 0.2
        keystroke return
      end tell
    end tell

    delay 0.6

    tell application "Microsoft Excel"
      save wb
      close wb saving yes
      if scratchWb is not missing value then
        close scratchWb saving no
      end if
    end tell
  end timeout
end run
`

func hostImportModule(target, module string, cfg config) error {
	dir, err := os.MkdirTemp("", "xlvba-osascript-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	script := filepath.Join(dir, "import_module.scpt")
	if err := os.WriteFile(script, []byte(importModuleScript), 0o600); err != nil {
		return err
	}

	out, err := exec.Command("osascript", script, target, module).CombinedOutput()
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		msg = err.Error()
	}
	return classifyScriptFailure(msg)
}

// classifyScriptFailure maps osascript diagnostics onto the automation
// error taxonomy so callers can print actionable guidance. Error numbers
// are matched alongside message text because the text is localized.
func classifyScriptFailure(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "-1743"),
		strings.Contains(lower, "not authorized to send apple events"),
		strings.Contains(lower, "not authorised to send apple events"):
		return fmt.Errorf("%w: controlling the host application needs the Automation permission; enable it for this terminal under System Settings > Privacy & Security > Automation, then retry: %s", ErrAutomationPermission, msg)
	case strings.Contains(msg, "-1712"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "timeout"):
		return fmt.Errorf("%w: the host may be busy or showing a modal dialog; bring it to the front, dismiss any dialogs, then retry: %s", ErrAutomationTimeout, msg)
	case strings.Contains(msg, "-1719"),
		strings.Contains(msg, "1002"),
		strings.Contains(lower, "assistive access"),
		strings.Contains(lower, "keystroke"):
		return fmt.Errorf("%w: UI scripting needs the Accessibility permission; enable it for this terminal under System Settings > Privacy & Security > Accessibility, then retry: %s", ErrAutomationPermission, msg)
	}
	return fmt.Errorf("host automation embed failed: %s", msg)
}
