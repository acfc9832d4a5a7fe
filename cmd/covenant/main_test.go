package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Tidemark-Labs/covenant/pkg/audit"
	"github.com/Tidemark-Labs/covenant/pkg/config"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

func TestRunVersion(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"covenant", "version"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("version exited %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "covenant engine v1.0.0") {
		t.Errorf("unexpected version output: %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"covenant", "frobnicate"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "Unknown command") {
		t.Errorf("expected unknown command message, got %q", errOut.String())
	}
}

func writeTestProfile(t *testing.T, dir, code, body string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+code+".yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildHostAppliesProfile(t *testing.T) {
	dir := t.TempDir()
	writeTestProfile(t, dir, "eu", `
name: Europe
code: eu
limits:
  max_amount: "1000"
  max_conditions: 1
  min_escrow_ttl: 60
parties:
  mode: allowlist
  allowlist: [alice, bob]
archival:
  enabled: true
  backend: dir
`)
	t.Setenv("COVENANT_STORE", "memory")
	t.Setenv("COVENANT_PROFILES_DIR", dir)
	t.Setenv("COVENANT_PROFILE", "eu")
	t.Setenv("COVENANT_ARCHIVE_DIR", filepath.Join(dir, "archive"))
	t.Setenv("COVENANT_JWT_SECRET", "")

	cfg := config.Load()
	ctx := context.Background()
	h, err := buildHost(ctx, cfg, newLogger(cfg, io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer h.cleanup()

	if _, ok := h.archiver.(*audit.DirArchiver); !ok {
		t.Fatalf("expected a directory archiver, got %T", h.archiver)
	}

	if _, err := h.engine.ExecuteTransaction(ctx, "mallory", "bob", contracts.NewAmount(10), ""); !errors.Is(err, contracts.ErrUnauthorized) {
		t.Errorf("sender outside the allowlist must be rejected, got %v", err)
	}
	if _, err := h.engine.ExecuteTransaction(ctx, "alice", "bob", contracts.NewAmount(2_000), ""); !errors.Is(err, contracts.ErrInvalidAmount) {
		t.Errorf("amount above the profile cap must be rejected, got %v", err)
	}
	if _, err := h.engine.ExecuteTransaction(ctx, "alice", "bob", contracts.NewAmount(500), ""); err != nil {
		t.Errorf("conforming transaction rejected: %v", err)
	}
}

func TestBuildHostWithoutProfile(t *testing.T) {
	t.Setenv("COVENANT_STORE", "memory")
	t.Setenv("COVENANT_PROFILE", "")
	t.Setenv("COVENANT_ARCHIVE_DIR", "")
	t.Setenv("COVENANT_JWT_SECRET", "")

	cfg := config.Load()
	h, err := buildHost(context.Background(), cfg, newLogger(cfg, io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer h.cleanup()

	if h.archiver != nil {
		t.Errorf("expected no archiver without a profile or archive dir, got %T", h.archiver)
	}
	if _, err := h.engine.ExecuteTransaction(context.Background(), "anyone", "bob", contracts.NewAmount(10), ""); err != nil {
		t.Errorf("unconstrained host rejected a transaction: %v", err)
	}
}

func TestRunInitExportsAuditSnapshot(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "archive")
	writeTestProfile(t, dir, "eu", `
name: Europe
code: eu
archival:
  enabled: true
  backend: dir
`)
	t.Setenv("COVENANT_STORE", "memory")
	t.Setenv("COVENANT_PROFILES_DIR", dir)
	t.Setenv("COVENANT_PROFILE", "eu")
	t.Setenv("COVENANT_ARCHIVE_DIR", archive)
	t.Setenv("COVENANT_JWT_SECRET", "")

	var out, errOut bytes.Buffer
	code := Run([]string{"covenant", "init", "admin-1"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("init exited %d: %s", code, errOut.String())
	}

	matches, err := filepath.Glob(filepath.Join(archive, "audit-*.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one audit snapshot in %s, found %v", archive, matches)
	}
}

func TestRunDemo(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"covenant", "demo"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("demo exited %d: %s", code, errOut.String())
	}
	for _, want := range []string{"txn 1 confirmed", "after approval: RELEASED", "invoice 1 executed", "head sha256:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("demo output missing %q:\n%s", want, out.String())
		}
	}
}
