// internal/xdg/xdg_test.go
package xdg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		fn   func() (string, error)
		want string
	}{
		{name: "config env", env: map[string]string{"XDG_CONFIG_HOME": "/custom/config"}, fn: ConfigDir, want: "/custom/config/plugman"},
		{name: "config default", env: map[string]string{"XDG_CONFIG_HOME": "", "HOME": "/home/op"}, fn: ConfigDir, want: "/home/op/.config/plugman"},
		{name: "data env", env: map[string]string{"XDG_DATA_HOME": "/custom/data"}, fn: DataDir, want: "/custom/data/plugman"},
		{name: "data default", env: map[string]string{"XDG_DATA_HOME": "", "HOME": "/home/op"}, fn: DataDir, want: "/home/op/.local/share/plugman"},
		{name: "state env", env: map[string]string{"XDG_STATE_HOME": "/custom/state"}, fn: StateDir, want: "/custom/state/plugman"},
		{name: "state default", env: map[string]string{"XDG_STATE_HOME": "", "HOME": "/home/op"}, fn: StateDir, want: "/home/op/.local/state/plugman"},
		{name: "runtime env", env: map[string]string{"XDG_RUNTIME_DIR": "/run/user/1000"}, fn: RuntimeDir, want: "/run/user/1000/plugman"},
		{name: "runtime fallback", env: map[string]string{"XDG_RUNTIME_DIR": "", "XDG_STATE_HOME": "/custom/state"}, fn: RuntimeDir, want: "/custom/state/plugman/run"},
		{name: "config file", env: map[string]string{"XDG_CONFIG_HOME": "/custom/config"}, fn: ConfigFile, want: "/custom/config/plugman/config.yaml"},
		{name: "plugins dir", env: map[string]string{"XDG_DATA_HOME": "/custom/data"}, fn: PluginsDir, want: "/custom/data/plugman/plugins"},
		{name: "journal file", env: map[string]string{"XDG_STATE_HOME": "/custom/state"}, fn: JournalFile, want: "/custom/state/plugman/journal.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDirs_NoHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("HOME", "")

	for name, fn := range map[string]func() (string, error){
		"config":  ConfigDir,
		"runtime": RuntimeDir,
		"journal": JournalFile,
	} {
		if _, err := fn(); !errors.Is(err, ErrNoHome) {
			t.Errorf("%s: error = %v, want ErrNoHome", name, err)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	testPath := filepath.Join(tmpDir, "nested", "dir")

	err := EnsureDir(testPath)
	if err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}

	info, err := os.Stat(testPath)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir() {
		t.Error("Expected directory, got file")
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("EnsureDir() permissions = %o, want %o", perm, 0o700)
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "idempotent")

	if err := EnsureDir(testPath); err != nil {
		t.Fatalf("First EnsureDir() error = %v", err)
	}
	if err := EnsureDir(testPath); err != nil {
		t.Fatalf("Second EnsureDir() error = %v", err)
	}
}
