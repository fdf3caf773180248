package app

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("DWELL_TEST_STR", "  hello  ")
	if got := EnvString("DWELL_TEST_STR", "def"); got != "hello" {
		t.Fatalf("EnvString trimmed = %q, want %q", got, "hello")
	}
	if got := EnvString("DWELL_TEST_STR_MISSING", "def"); got != "def" {
		t.Fatalf("EnvString default = %q, want %q", got, "def")
	}
}

func TestEnvBool(t *testing.T) {
	cases := []struct {
		val  string
		def  bool
		want bool
	}{
		{val: "true", def: false, want: true},
		{val: "0", def: true, want: false},
		{val: "yes", def: true, want: true}, // unparsable falls back to default
		{val: "", def: true, want: true},
	}

	for _, tc := range cases {
		t.Setenv("DWELL_TEST_BOOL", tc.val)
		if got := EnvBool("DWELL_TEST_BOOL", tc.def); got != tc.want {
			t.Fatalf("EnvBool(%q, %v) = %v, want %v", tc.val, tc.def, got, tc.want)
		}
	}
}

func TestEnvInt(t *testing.T) {
	cases := []struct {
		val  string
		want int
	}{
		{val: "42", want: 42},
		{val: "0", want: 7},
		{val: "-3", want: 7},
		{val: "nope", want: 7},
		{val: "", want: 7},
	}

	for _, tc := range cases {
		t.Setenv("DWELL_TEST_INT", tc.val)
		if got := EnvInt("DWELL_TEST_INT", 7); got != tc.want {
			t.Fatalf("EnvInt(%q) = %d, want %d", tc.val, got, tc.want)
		}
	}
}

func TestEnvDuration(t *testing.T) {
	cases := []struct {
		val  string
		want time.Duration
	}{
		{val: "30s", want: 30 * time.Second},
		{val: "2m", want: 2 * time.Minute},
		{val: "-5s", want: time.Second},
		{val: "soon", want: time.Second},
		{val: "", want: time.Second},
	}

	for _, tc := range cases {
		t.Setenv("DWELL_TEST_DUR", tc.val)
		if got := EnvDuration("DWELL_TEST_DUR", time.Second); got != tc.want {
			t.Fatalf("EnvDuration(%q) = %v, want %v", tc.val, got, tc.want)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DBSchema != "dwell" {
		t.Fatalf("DBSchema = %q", cfg.DBSchema)
	}
	if cfg.ReminderDelay != 15*time.Minute {
		t.Fatalf("ReminderDelay = %v", cfg.ReminderDelay)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("TokenTTL = %v", cfg.TokenTTL)
	}
	if !cfg.WorkerEnabled {
		t.Fatalf("WorkerEnabled should default to true")
	}
}
