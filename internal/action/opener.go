package action

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Compile-time assertion that BrowserOpener satisfies Opener.
var _ Opener = BrowserOpener{}

// BrowserOpener opens external views in the host's default browser.
type BrowserOpener struct{}

// OpenExternalView implements Opener using the platform's URL handler.
func (BrowserOpener) OpenExternalView(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("action: open browser: %w", err)
	}
	// Detach; the browser outlives us and its exit status is noise.
	go func() { _ = cmd.Wait() }()
	return nil
}
