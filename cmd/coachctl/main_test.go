package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "coachctl version "+Version) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestStateShowFreshUser(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STATE_BACKEND", "file")
	t.Setenv("STATE_FILE", filepath.Join(dir, "user_state.json"))
	t.Setenv("DB_PATH", filepath.Join(dir, "betterme.db"))

	out, err := execute(t, "state", "show", "nobody")
	if err != nil {
		t.Fatalf("state show failed: %v", err)
	}

	var state map[string]interface{}
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if state["mode"] != "CHAT" {
		t.Errorf("expected CHAT mode, got %v", state["mode"])
	}
}

func TestCheckinsRunWithoutMailer(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_PATH", filepath.Join(dir, "betterme.db"))
	t.Setenv("STATE_FILE", filepath.Join(dir, "user_state.json"))
	t.Setenv("SENDGRID_API_KEY", "")

	out, err := execute(t, "checkins", "run")
	if err != nil {
		t.Fatalf("checkins run failed: %v", err)
	}
	if !strings.Contains(out, `"considered": 0`) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestStateList(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "user_state.json")
	t.Setenv("STATE_BACKEND", "file")
	t.Setenv("STATE_FILE", statePath)
	t.Setenv("DB_PATH", filepath.Join(dir, "betterme.db"))

	doc := `{"zoe": {"mode": "CHAT"}, "amir": {"mode": "PLAN_BUILD"}}`
	if err := os.WriteFile(statePath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "state", "list")
	if err != nil {
		t.Fatalf("state list failed: %v", err)
	}
	if out != "amir\nzoe\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestStateShowNeedsUserID(t *testing.T) {
	if _, err := execute(t, "state", "show"); err == nil {
		t.Error("expected an argument error")
	}
}
