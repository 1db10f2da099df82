package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"usdmcore/internal/blob"
	"usdmcore/internal/semantic"
	"usdmcore/pkg/domain"
	"usdmcore/pkg/patch"
)

func seedChain(t *testing.T, root string) {
	t.Helper()
	store, err := blob.NewFilesystem(root)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	chain := semantic.NewChangeLog(store)
	for i := 0; i < 2; i++ {
		if _, err := chain.Append(context.Background(), "proto-1", semantic.AppendInput{
			PublishedAt:  time.Date(2026, 1, 15, 12+i, 0, 0, 0, time.UTC),
			PublishedBy:  "reviewer",
			Reason:       "amendment",
			Patch:        []patch.Operation{{Op: patch.OpReplace, Path: "/study/name", Value: "v"}},
			DocumentHash: strings.Repeat("a", 64),
			Validation:   &domain.ValidationSummary{SchemaValid: true, DomainValid: true},
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestCLI_ValidChain(t *testing.T) {
	root := t.TempDir()
	seedChain(t, root)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-object-root", root}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "proto-1: ok (2 entries)") {
		t.Fatalf("unexpected output: %s", stdout.String())
	}
}

func TestCLI_SingleProtocol(t *testing.T) {
	root := t.TempDir()
	seedChain(t, root)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-object-root", root, "-protocol", "proto-1"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
}

func TestCLI_NoChains(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-object-root", t.TempDir()}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "no change logs found") {
		t.Fatalf("unexpected output: %s", stdout.String())
	}
}

func TestCLI_TamperedChain(t *testing.T) {
	root := t.TempDir()
	seedChain(t, root)
	logPath := filepath.Join(root, "semantic", "proto-1", "changelog.json")
	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	tampered := bytes.Replace(raw, []byte("amendment"), []byte("rewritten"), 1)
	if err := os.WriteFile(logPath, tampered, 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-object-root", root}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("tampered chain must exit 1, got %d", code)
	}
	if !strings.Contains(stdout.String(), "BROKEN at entry 0") {
		t.Fatalf("unexpected output: %s", stdout.String())
	}
}

func TestCLI_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected usage exit 2, got %d", code)
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()
	oldArgs := os.Args
	os.Args = []string{"chaincheck", "-object-root", t.TempDir()}
	defer func() { os.Args = oldArgs }()
	main()
	if len(codes) != 1 || codes[0] != 0 {
		t.Fatalf("unexpected exit codes %v", codes)
	}
}
