package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	content := fmt.Sprintf("[paths]\ndata_dir = %q\nlog_dir = %q\n",
		filepath.Join(base, "data"), filepath.Join(base, "logs"))
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	configPath := writeTestConfig(t)
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, configPath, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, configPath, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error re-initializing without --overwrite")
	}
}

func TestSeedAndLabelingFlow(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCLI(t, configPath, "seed", "--admin", "root")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	requireContains(t, out, "6 categories")
	requireContains(t, out, "20 images")

	out, err = runCLI(t, configPath, "--worker", "root", "workers", "create", "alice", "--full-name", "Alice", "--categories", "1,2")
	if err != nil {
		t.Fatalf("workers create: %v", err)
	}
	requireContains(t, out, `Created worker "alice"`)

	out, err = runCLI(t, configPath, "workers", "list")
	if err != nil {
		t.Fatalf("workers list: %v", err)
	}
	requireContains(t, out, "alice")
	requireContains(t, out, "root")

	out, err = runCLI(t, configPath, "--worker", "alice", "items", "list")
	if err != nil {
		t.Fatalf("items list: %v", err)
	}
	requireContains(t, out, "pet_001.jpg")

	out, err = runCLI(t, configPath, "--worker", "alice", "annotate", "save", "1",
		"--set", "1=1", "--set", "2=7", "--elapsed", "30")
	if err != nil {
		t.Fatalf("annotate save: %v", err)
	}
	requireContains(t, out, "Saved 2 categories on item #1")

	out, err = runCLI(t, configPath, "--worker", "root", "review", "stats")
	if err != nil {
		t.Fatalf("review stats: %v", err)
	}
	requireContains(t, out, "Completed")
}

func TestItemsListRequiresWorkerIdentity(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, configPath, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := runCLI(t, configPath, "items", "list")
	if err == nil || !strings.Contains(err.Error(), "worker identity required") {
		t.Fatalf("expected identity error, got %v", err)
	}
}
