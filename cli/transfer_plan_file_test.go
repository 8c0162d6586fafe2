package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jgoldverg/grover-tftp/internal"
)

func writePlan(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write plan file: %v", err)
	}
	return path
}

func TestLoadTransferPlanDocumentYAML(t *testing.T) {
	planPath := writePlan(t, "plan.yaml", `
version: 1
server: 10.0.0.5:69
mode: netascii
timeout_ms: 750
steps:
  - op: get
    remote: pxelinux.0
  - op: get
    files: [boot/vmlinuz, boot/initrd.img]
    dir: out
  - op: put
    local: ./logs/install.log
    remote: logs/host-a.log
`)
	doc, err := loadTransferPlanDocument(planPath)
	if err != nil {
		t.Fatalf("load plan: %v", err)
	}
	if doc.Server != "10.0.0.5:69" || doc.Mode != "netascii" {
		t.Fatalf("unexpected plan header: %+v", doc)
	}
	if doc.TimeoutMs == nil || *doc.TimeoutMs != 750 {
		t.Fatalf("expected timeout_ms 750, got %v", doc.TimeoutMs)
	}

	want := []transferStep{
		{Op: opGet, Remote: "pxelinux.0", Local: "pxelinux.0"},
		{Op: opGet, Remote: "boot/vmlinuz", Local: filepath.Join("out", "boot", "vmlinuz")},
		{Op: opGet, Remote: "boot/initrd.img", Local: filepath.Join("out", "boot", "initrd.img")},
		{Op: opPut, Remote: "logs/host-a.log", Local: "./logs/install.log"},
	}
	if got := doc.toSteps(); !reflect.DeepEqual(got, want) {
		t.Fatalf("steps:\n got %#v\nwant %#v", got, want)
	}
}

func TestLoadTransferPlanDocumentJSON(t *testing.T) {
	planPath := writePlan(t, "plan.json", `{
  "steps": [
    {"op": "put", "local": "/tmp/firmware.bin"},
    {"op": "GET", "files": "config.txt"}
  ],
  "continue_on_error": true
}`)
	doc, err := loadTransferPlanDocument(planPath)
	if err != nil {
		t.Fatalf("load plan: %v", err)
	}
	if doc.Version != 1 {
		t.Fatalf("expected version to default to 1, got %d", doc.Version)
	}
	if !doc.ContinueOnError {
		t.Fatal("expected continue_on_error")
	}
	want := []transferStep{
		{Op: opPut, Remote: "firmware.bin", Local: "/tmp/firmware.bin"},
		{Op: opGet, Remote: "config.txt", Local: "config.txt"},
	}
	if got := doc.toSteps(); !reflect.DeepEqual(got, want) {
		t.Fatalf("steps:\n got %#v\nwant %#v", got, want)
	}
}

func TestLoadTransferPlanDocumentTOML(t *testing.T) {
	planPath := writePlan(t, "plan.toml", `
version = 1
max_retries = 2

[[steps]]
op = "get"
files = ["a.bin", " ", "b.bin"]
dir = "dl"

[[steps]]
op = "put"
local = "up.bin"
`)
	doc, err := loadTransferPlanDocument(planPath)
	if err != nil {
		t.Fatalf("load plan: %v", err)
	}
	if doc.MaxRetries == nil || *doc.MaxRetries != 2 {
		t.Fatalf("expected max_retries 2, got %v", doc.MaxRetries)
	}
	steps := doc.toSteps()
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps (blank file dropped), got %#v", steps)
	}
	if steps[1].Local != filepath.Join("dl", "b.bin") {
		t.Fatalf("unexpected local path %q", steps[1].Local)
	}
	if steps[2].Remote != "up.bin" {
		t.Fatalf("unexpected remote %q", steps[2].Remote)
	}
}

func TestLoadTransferPlanDocumentRejectsBadPlans(t *testing.T) {
	cases := map[string]string{
		"version.yaml":  "version: 2\nsteps:\n  - op: get\n    remote: x\n",
		"empty.yaml":    "version: 1\n",
		"op.yaml":       "steps:\n  - op: delete\n    remote: x\n",
		"noremote.yaml": "steps:\n  - op: get\n",
		"nolocal.yaml":  "steps:\n  - op: put\n",
		"mixed.yaml":    "steps:\n  - op: get\n    remote: x\n    files: [y]\n",
		"broken.json":   "{\"steps\": [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadTransferPlanDocument(writePlan(t, name, content)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestPlanAppliesClientOverrides(t *testing.T) {
	timeout := 100
	doc := &planDocument{Server: "192.0.2.1:6969", Mode: "octet", TimeoutMs: &timeout}
	cfg := internal.DefaultClientConfig()
	doc.applyTo(cfg)
	if cfg.Server != "192.0.2.1:6969" || cfg.TimeoutMs != 100 || cfg.MaxRetries != 5 {
		t.Fatalf("unexpected client config: %+v", cfg)
	}
}
