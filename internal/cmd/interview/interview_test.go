package interview

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("interview", flag.ContinueOnError)
	t.Setenv("CALIPER_INTERVIEW_ADDR", ":9090")
	t.Setenv("CALIPER_INTERVIEW_PAUSE_TTL", "20m")

	cfg, err := ParseConfig(fs, []string{"-db-path", "test.db", "-precision-threshold", "0.3"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr = %q, want :9090", cfg.Addr)
	}
	if cfg.PauseTTL != 20*time.Minute {
		t.Fatalf("pause ttl = %v, want 20m", cfg.PauseTTL)
	}
	if cfg.DBPath != "test.db" {
		t.Fatalf("db path = %q, want test.db", cfg.DBPath)
	}
	if cfg.Precision != 0.3 {
		t.Fatalf("precision = %v, want 0.3", cfg.Precision)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("interview", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q, want :8080", cfg.Addr)
	}
	if cfg.StartGrace != 5*time.Minute {
		t.Fatalf("start grace = %v, want 5m", cfg.StartGrace)
	}
	if cfg.Precision != 0.4 {
		t.Fatalf("precision = %v, want 0.4", cfg.Precision)
	}
}

func TestLoadBank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	payload := `[
		{"id": "q-1", "content": "Explain goroutines.", "job_role": "backend-engineer", "technologies": ["go"], "difficulty": 0.5, "discrimination": 1.2},
		{"id": "q-2", "content": "Explain indexes.", "job_role": "backend-engineer", "technologies": ["postgres"], "difficulty": -0.5, "discrimination": 0.9}
	]`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write questions: %v", err)
	}

	bank, err := loadBank(path)
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	pool, err := bank.Pool(context.Background(), "backend-engineer", nil)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if len(pool) != 2 {
		t.Fatalf("pool len = %d, want 2", len(pool))
	}
}

func TestLoadBankRejectsInvalidItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, []byte(`[{"id": "q-1", "content": "c", "discrimination": 0}]`), 0o600); err != nil {
		t.Fatalf("write questions: %v", err)
	}
	if _, err := loadBank(path); err == nil {
		t.Fatal("invalid question did not fail")
	}
}
