package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// browserCommand picks the launcher for url, honoring a BROWSER environment
// override before falling back to the platform default.
func browserCommand(url string) (*exec.Cmd, error) {
	if browser := os.Getenv("BROWSER"); browser != "" {
		return exec.Command(browser, url), nil
	}

	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("cmd", "/c", "start", url), nil
	}

	return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
}

// OpenBrowser launches a browser on the consent page URL during the login
// flow. The command is started, not waited on.
func OpenBrowser(url string) error {
	cmd, err := browserCommand(url)
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
