package paths

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns ~/.local/share/wamirror, the default location for
// everything the daemon persists: credentials, mirror database, logs.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "wamirror")
}

// ConfigPath returns the config.toml path inside the data dir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// SessionDBPath returns the whatsmeow-owned credential store path.
func SessionDBPath(dataDir string) string {
	return filepath.Join(dataDir, "session.db")
}

// MirrorDBPath returns the app-owned mirror database path.
func MirrorDBPath(dataDir string) string {
	return filepath.Join(dataDir, "wamirror.db")
}

// QRImagePath returns where the serve-mode pairing QR PNG is written.
func QRImagePath(dataDir string) string {
	return filepath.Join(dataDir, "pairing-qr.png")
}

// LogDir returns the log directory inside the data dir.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// LogPath returns the daemon log file path.
func LogPath(dataDir string) string {
	return filepath.Join(LogDir(dataDir), "wamirrord.log")
}

// EnsureDataDir creates the data directory tree with owner-only permissions.
func EnsureDataDir(dataDir string) error {
	for _, d := range []string{dataDir, LogDir(dataDir)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
