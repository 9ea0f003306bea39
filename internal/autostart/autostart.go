// Package autostart manages the XDG autostart entry that launches memsweep
// when the user logs in to a graphical session.
package autostart

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const entryName = "memsweep.desktop"

// Dir returns the per-user autostart directory, honouring XDG_CONFIG_HOME.
func Dir() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); base != "" {
		return filepath.Join(base, "autostart"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "autostart"), nil
}

// Path returns the location of memsweep's autostart entry.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, entryName), nil
}

// Enable writes an entry that runs `<executable> [--config <configPath>] run`
// at login. An existing entry is replaced.
func Enable(executable, configPath string) (string, error) {
	if strings.TrimSpace(executable) == "" {
		return "", errors.New("autostart: executable path is empty")
	}
	path, err := Path()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create autostart directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Entry(executable, configPath)), 0o644); err != nil {
		return "", fmt.Errorf("write autostart entry: %w", err)
	}
	return path, nil
}

// Disable removes the autostart entry. A missing entry is not an error.
func Disable() (string, error) {
	path, err := Path()
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("remove autostart entry: %w", err)
	}
	return path, nil
}

// Enabled reports whether the autostart entry exists.
func Enabled() (bool, error) {
	path, err := Path()
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat autostart entry: %w", err)
	}
}

// Entry renders the desktop entry text.
func Entry(executable, configPath string) string {
	args := []string{quoteArg(executable)}
	if strings.TrimSpace(configPath) != "" {
		args = append(args, "--config", quoteArg(configPath))
	}
	args = append(args, "run")

	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	b.WriteString("Name=memsweep\n")
	b.WriteString("Comment=Per-session memory reclaim daemon\n")
	fmt.Fprintf(&b, "Exec=%s\n", strings.Join(args, " "))
	b.WriteString("Terminal=false\n")
	b.WriteString("NoDisplay=true\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return b.String()
}

// quoteArg applies the desktop entry Exec quoting rules.
func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n\"'\\><~|&;$*?#()`%") {
		return arg
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range arg {
		switch r {
		case '"', '`', '$', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	// The Exec value is itself a string value, so backslashes are escaped again.
	return strings.ReplaceAll(strings.ReplaceAll(b.String(), `\`, `\\`), "%", "%%")
}
