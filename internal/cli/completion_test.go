package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCompletion(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	completionCmd.SetOut(&out)
	completionCmd.SetErr(&bytes.Buffer{})
	defer completionCmd.SetOut(nil)
	defer completionCmd.SetErr(nil)
	err := completionCmd.RunE(completionCmd, args)
	return out.String(), err
}

func TestCompletionCommand_PrintsScript(t *testing.T) {
	if !rootCmd.CompletionOptions.DisableDefaultCmd {
		t.Error("expected cobra's default completion command to be disabled")
	}
	out, err := runCompletion(t, "bash")
	if err != nil {
		t.Fatalf("completion bash: %v", err)
	}
	if !strings.Contains(out, "tick") {
		t.Errorf("bash script does not mention tick:\n%.200s", out)
	}
}

func TestCompletionCommand_InstallIntoDir(t *testing.T) {
	dir := t.TempDir()
	swap(t, &completionInstall, true)
	swap(t, &completionDir, dir)

	out, err := runCompletion(t, "fish")
	if err != nil {
		t.Fatalf("completion fish --install: %v", err)
	}
	target := filepath.Join(dir, "tick.fish")
	if !strings.Contains(out, target) {
		t.Errorf("output = %q, want it to name %s", out, target)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("installed script is empty")
	}

	if _, err := runCompletion(t, "powershell"); err != nil {
		t.Errorf("powershell with --dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tick.powershell")); err != nil {
		t.Errorf("powershell script not installed: %v", err)
	}
}

func TestCompletionCommand_Errors(t *testing.T) {
	if _, err := runCompletion(t, "tcsh"); err == nil || !strings.Contains(err.Error(), "unsupported shell") {
		t.Errorf("unknown shell: err = %v", err)
	}

	swap(t, &completionInstall, true)
	if _, err := runCompletion(t, "powershell"); err == nil || !strings.Contains(err.Error(), "--dir") {
		t.Errorf("powershell install without --dir: err = %v", err)
	}
}
