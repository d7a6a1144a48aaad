package cmd

import (
	"errors"
	"os/exec"
	"testing"
)

func TestChildEnvReplacesBaseURL(t *testing.T) {
	env := childEnv([]string{
		"HOME=/home/dev",
		"ANTHROPIC_BASE_URL=https://gateway.example.com",
		"PATH=/usr/bin",
	}, "http://127.0.0.1:40123")

	want := []string{"HOME=/home/dev", "PATH=/usr/bin", "ANTHROPIC_BASE_URL=http://127.0.0.1:40123"}
	if len(env) != len(want) {
		t.Fatalf("env = %v, want %v", env, want)
	}
	for i := range want {
		if env[i] != want[i] {
			t.Errorf("env[%d] = %q, want %q", i, env[i], want[i])
		}
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Errorf("exitCode(nil) = %d", got)
	}
	if got := exitCode(errors.New("boom")); got != 0 {
		t.Errorf("non-exit error mapped to %d", got)
	}

	err := exec.Command("sh", "-c", "exit 7").Run()
	if got := exitCode(err); got != 7 {
		t.Errorf("exitCode(exit 7) = %d, want 7", got)
	}

	err = exec.Command("sh", "-c", "kill -TERM $$").Run()
	if got := exitCode(err); got != 128+15 {
		t.Errorf("exitCode(SIGTERM) = %d, want 143", got)
	}
}

func TestExitErrorMessage(t *testing.T) {
	err := &ExitError{Code: 3}
	if err.Error() != "exit status 3" {
		t.Errorf("Error() = %q", err.Error())
	}
}
