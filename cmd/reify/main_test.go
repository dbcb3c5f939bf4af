package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

const quietEngine = `
engine:
  logging:
    level: error
`

const chatConfig = quietEngine + chatPipelines

const chatPipelines = `
pipelines:
  startChat:
    $pipe:
      - $do: entity.create
        $with:
          type: Session
          id: {$temp: true}
          title: {$input: title}
        $as: session
      - $do: entity.update
        $with:
          type: Session
          id: {$ref: session.id}
          count: {$inc: 1}
          startedAt: {$now: true}
        $as: updated
    $return:
      id: {$ref: updated.id}
      count: {$ref: updated.count}
      title: {$ref: updated.title}
      startedAt: {$ref: updated.startedAt}
  echo:
    $do: set
    $with:
      value: {$input: value}
`

const brokenConfig = `
pipelines:
  broken:
    $pipe: not-a-list
`

func TestRunRun(t *testing.T) {
	out := captureOutput(t)
	path := writeTestConfig(t, t.TempDir(), "reify.yaml", chatConfig)

	err := runRun([]string{"-c", path, "-p", "startChat", "-input", `{"title":"Chat"}`, "-now", "2026-01-02T03:04:05Z"})
	if err != nil {
		t.Fatalf("runRun: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if got["title"] != "Chat" || got["count"] != 1.0 {
		t.Errorf("unexpected result %v", got)
	}
	if got["startedAt"] != "2026-01-02T03:04:05Z" {
		t.Errorf("startedAt = %v", got["startedAt"])
	}
	id, _ := got["id"].(string)
	if id == "" || strings.HasPrefix(id, "temp_") {
		t.Errorf("expected a permanent id, got %q", id)
	}
}

const prefixedConfig = quietEngine + `  tempIds:
    prefix: tmp_
pipelines:
  tag:
    $pipe:
      - $do: entity.create
        $with:
          type: Tag
          id: {$temp: true}
        $as: created
      - $do: entity.update
        $with:
          type: Tag
          id: {$ref: created.tempId}
          uses: {$inc: 1}
        $as: updated
    $return:
      id: {$ref: created.id}
      tempId: {$ref: created.tempId}
      updatedId: {$ref: updated.id}
`

func TestRunRunCustomTempPrefix(t *testing.T) {
	out := captureOutput(t)
	path := writeTestConfig(t, t.TempDir(), "reify.yaml", prefixedConfig)

	if err := runRun([]string{"-c", path, "-p", "tag"}); err != nil {
		t.Fatalf("runRun: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	id, _ := got["id"].(string)
	if got["tempId"] != "tmp_1" || id == "" || strings.HasPrefix(id, "tmp_") {
		t.Errorf("expected tmp_1 remapped to a permanent id, got %v", got)
	}
	if got["updatedId"] != id {
		t.Errorf("update through the temp id hit %v, want %s", got["updatedId"], id)
	}
}

func TestRunRunSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "reify.db")
	cfg := quietEngine + "  store:\n    driver: sqlite\n    path: " + dbPath + "\n" + chatPipelines
	path := writeTestConfig(t, dir, "reify.yaml", cfg)
	captureOutput(t)

	if err := runRun([]string{"-c", path, "-p", "startChat", "-input", `{"title":"Stored"}`}); err != nil {
		t.Fatalf("runRun: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected sqlite database at %s: %v", dbPath, err)
	}
}

func TestRunRunInputFile(t *testing.T) {
	out := captureOutput(t)
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "reify.yaml", chatConfig)
	inputPath := writeTestConfig(t, dir, "input.json", `{"value":[1,2]}`)

	if err := runRun([]string{"-c", path, "-p", "echo", "-input-file", inputPath}); err != nil {
		t.Fatalf("runRun: %v", err)
	}
	if !strings.Contains(out.String(), `"value": [`) {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunRunErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "reify.yaml", chatConfig)
	captureOutput(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing pipeline flag", []string{"-c", path}, "pipeline name is required"},
		{"unknown pipeline", []string{"-c", path, "-p", "nope"}, `pipeline "nope" not defined`},
		{"bad input", []string{"-c", path, "-p", "echo", "-input", "[1]"}, "invalid input JSON"},
		{"both inputs", []string{"-c", path, "-p", "echo", "-input", "{}", "-input-file", path}, "mutually exclusive"},
		{"bad now", []string{"-c", path, "-p", "echo", "-now", "yesterday"}, "invalid -now value"},
		{"bad store", []string{"-c", path, "-p", "echo", "-store", "tape"}, "invalid config"},
		{"missing config", []string{"-c", filepath.Join(dir, "missing.yaml"), "-p", "echo"}, "failed to load config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runRun(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeTestConfig(t, dir, "good.yaml", chatConfig)
	other := writeTestConfig(t, dir, "other.yaml", "pipelines: {}\n")
	broken := writeTestConfig(t, dir, "broken.yaml", brokenConfig)

	out := captureOutput(t)
	if err := runValidate([]string{good, other}); err != nil {
		t.Fatalf("expected valid configs, got %v", err)
	}
	if !strings.Contains(out.String(), "good.yaml is valid (2 pipelines)") ||
		!strings.Contains(out.String(), "other.yaml is valid (0 pipelines)") {
		t.Errorf("unexpected output %q", out.String())
	}

	err := runValidate([]string{good, broken})
	if err == nil || !strings.Contains(err.Error(), "broken.yaml") || !strings.Contains(err.Error(), `pipeline "broken"`) {
		t.Errorf("expected error naming broken.yaml, got %v", err)
	}

	if err := runValidate(nil); err == nil {
		t.Error("expected error without paths")
	}
}

func TestRunList(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "reify.yaml", chatConfig)
	out := captureOutput(t)

	if err := runList([]string{"-c", path}); err != nil {
		t.Fatalf("runList: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two pipelines, got %q", out.String())
	}
	if f := strings.Fields(lines[1]); len(f) != 3 || f[0] != "echo" || f[1] != "1" || f[2] != "results" {
		t.Errorf("unexpected echo line %q", lines[1])
	}
	if f := strings.Fields(lines[2]); len(f) != 3 || f[0] != "startChat" || f[1] != "2" || f[2] != "expression" {
		t.Errorf("unexpected startChat line %q", lines[2])
	}
}

func TestRunResolve(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"input", []string{"-input", `{"a":{"b":2}}`, `{"$input":"a.b"}`}, "2"},
		{"ref", []string{"-results", `{"s":{"id":"x"}}`, `{"$ref":"s.id"}`}, `"x"`},
		{"missing is null", []string{`{"$input":"nope"}`}, "null"},
		{"now", []string{"-now", "2026-01-02T03:04:05Z", `{"$now":true}`}, `"2026-01-02T03:04:05Z"`},
		{"temp", []string{`{"$temp":true}`}, `"temp_1"`},
		{"marker", []string{"-input", `{"n":2}`, `{"$inc":{"$input":"n"}}`}, "{\n  \"$inc\": 2\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOutput(t)
			if err := runResolve(tt.args); err != nil {
				t.Fatalf("runResolve: %v", err)
			}
			if got := strings.TrimSpace(out.String()); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRunResolveErrors(t *testing.T) {
	captureOutput(t)
	if err := runResolve([]string{"-strict", `{"$ref":"missing.id"}`}); err == nil {
		t.Error("expected strict mode error")
	}
	if err := runResolve([]string{"{"}); err == nil {
		t.Error("expected JSON error")
	}
	if err := runResolve(nil); err == nil {
		t.Error("expected error without an expression")
	}
}
