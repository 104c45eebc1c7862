package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/tacoscan/domain/dashboard"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile = "tacoscan.yaml"
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "tacoscan "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tacoscan.yaml")
	content := `
chain:
  rpc_url: "http://127.0.0.1:8545"
  chain_id: 80002
  fee_model: "0x00000000000000000000000000000000000000a1"
database:
  driver: sqlite
  dsn: "` + filepath.Join(t.TempDir(), "v.db") + `"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, "validate", "--config", path, "--check-database")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	for _, want := range []string{"Config syntax valid", "Fee model: 0x00000000000000000000000000000000000000a1", "Database writable", "Configuration is valid."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommand_Missing(t *testing.T) {
	_, err := execute(t, "validate", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("err = %v, want config file not found", err)
	}
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tacoscan.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := execute(t, "validate", "--config", path)
	if err == nil {
		t.Fatal("expected error for config without rpc_url")
	}
	if !strings.Contains(out, "Config syntax valid") {
		t.Errorf("output = %q", out)
	}
}

func TestInitCommand_NonInteractive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tacoscan.yaml")
	db := filepath.Join(dir, "journal.db")

	out, err := execute(t, "init", "--config", path, "--non-interactive",
		"--rpc-url", "http://127.0.0.1:8545",
		"--fee-model", "0x00000000000000000000000000000000000000a1",
		"--database", db)
	if err != nil {
		t.Fatalf("init: %v\n%s", err, out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config not written: %v", err)
	}
	if _, err := os.Stat(db); err != nil {
		t.Errorf("database not created: %v", err)
	}

	// A second run must not overwrite without --force.
	out, err = execute(t, "init", "--config", path, "--non-interactive",
		"--rpc-url", "http://127.0.0.1:9545",
		"--fee-model", "0x00000000000000000000000000000000000000a1",
		"--database", db)
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if !strings.Contains(out, "Aborted.") {
		t.Errorf("output = %q, want Aborted.", out)
	}
}

func TestGenerateConfig(t *testing.T) {
	got := generateConfig("http://rpc", 137, "0xfee", "0xacc", "x.db")
	for _, want := range []string{`rpc_url: "http://rpc"`, "chain_id: 137", `fee_model: "0xfee"`, `access_controller: "0xacc"`, `dsn: "x.db"`} {
		if !strings.Contains(got, want) {
			t.Errorf("config missing %q", want)
		}
	}
}

func TestPrintView_Errors(t *testing.T) {
	var out bytes.Buffer
	printView(&out, "7", dashboard.View{
		Error:      "getCurrentPeriodNumber: rpc down",
		WriteError: "allowance granted but payment failed: reverted",
	})
	for _, want := range []string{"last refresh failed: getCurrentPeriodNumber", "last write failed: allowance granted"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output = %q, want %q", out.String(), want)
		}
	}
}
