package auth

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/skratchdot/open-golang/open"
)

// OpenBrowser opens url in the user's default browser without waiting for it.
func OpenBrowser(url string) error {
	wsl := isWSL()
	if !wsl {
		if err := open.Start(url); err == nil {
			return nil
		}
	}

	name, args, err := browserCommand(runtime.GOOS, wsl, url)
	if err != nil {
		return err
	}
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("start browser command %s: %w", name, err)
	}
	return nil
}

func browserCommand(goos string, wsl bool, url string) (string, []string, error) {
	if wsl {
		return "powershell.exe", []string{"-NoProfile", "-Command", "Start", url}, nil
	}

	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "powershell", []string{"-NoProfile", "-Command", "Start", url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	default:
		return "", nil, fmt.Errorf("unsupported operating system: %s", goos)
	}
}

func isWSL() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}
