package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/japaniel/codeclass/pkg/segment"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

func newFlagBinder(defaults Config) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	return &fakeBinder{fs: fs}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chunk.Length != 4096 {
		t.Errorf("Chunk.Length = %d; want 4096", cfg.Chunk.Length)
	}
	if cfg.Vocab.Size != 1000 {
		t.Errorf("Vocab.Size = %d; want 1000", cfg.Vocab.Size)
	}
	if cfg.Vocab.ReportSize != 500 {
		t.Errorf("Vocab.ReportSize = %d; want 500", cfg.Vocab.ReportSize)
	}
	if cfg.Eval.BatchSize != 1000 {
		t.Errorf("Eval.BatchSize = %d; want 1000", cfg.Eval.BatchSize)
	}
	if cfg.Vocab.Unknown != "UNK" {
		t.Errorf("Vocab.Unknown = %q; want UNK", cfg.Vocab.Unknown)
	}
	if len(cfg.Data.TrainSplits) != 2 || cfg.Data.TrainSplits[0] != "train" || cfg.Data.TrainSplits[1] != "valid" {
		t.Errorf("Data.TrainSplits = %v", cfg.Data.TrainSplits)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(defaults), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunk.Length != 4096 || cfg.Paths.Store != defaults.Paths.Store {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Data.TestSplits) != 1 || cfg.Data.TestSplits[0] != "test" {
		t.Fatalf("TestSplits = %v", cfg.Data.TestSplits)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	file := filepath.Join(dir, "codeclass.yaml")
	body := "chunk:\n  length: 1024\nvocab:\n  size: 50\n  report_size: 20\neval:\n  batch_size: 7\n"
	if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CODECLASS_VOCAB_SIZE", "60")

	defaults := DefaultConfig()
	b := newFlagBinder(defaults)
	if err := b.fs.Parse([]string{"--eval-batch-size", "9", "--test-splits", "a,b"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(LoadOptions{Cmd: b, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunk.Length != 1024 {
		t.Errorf("file value not applied: chunk.length = %d", cfg.Chunk.Length)
	}
	if cfg.Vocab.Size != 60 {
		t.Errorf("env did not override file: vocab.size = %d", cfg.Vocab.Size)
	}
	if cfg.Vocab.ReportSize != 20 {
		t.Errorf("vocab.report_size = %d; want 20", cfg.Vocab.ReportSize)
	}
	if cfg.Eval.BatchSize != 9 {
		t.Errorf("flag did not override file: eval.batch_size = %d", cfg.Eval.BatchSize)
	}
	if len(cfg.Data.TestSplits) != 2 || cfg.Data.TestSplits[1] != "b" {
		t.Errorf("test splits = %v", cfg.Data.TestSplits)
	}
}

func TestLoadChunkPreset(t *testing.T) {
	chdir(t, t.TempDir())
	tests := []struct {
		args []string
		want int
	}{
		{[]string{"--chunk-preset", "legacy"}, segment.LegacyChunkLength},
		{[]string{"--chunk-length", "64", "--chunk-preset", "default"}, segment.DefaultChunkLength},
		{[]string{"--chunk-length", "64"}, 64},
	}
	for _, tt := range tests {
		defaults := DefaultConfig()
		b := newFlagBinder(defaults)
		if err := b.fs.Parse(tt.args); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(LoadOptions{Cmd: b, Defaults: defaults})
		if err != nil {
			t.Fatalf("Load(%v): %v", tt.args, err)
		}
		if cfg.Chunk.Length != tt.want {
			t.Errorf("Load(%v): chunk.length = %d; want %d", tt.args, cfg.Chunk.Length, tt.want)
		}
	}

	defaults := DefaultConfig()
	b := newFlagBinder(defaults)
	if err := b.fs.Parse([]string{"--chunk-preset", "huge"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(LoadOptions{Cmd: b, Defaults: defaults}); err == nil {
		t.Fatal("expected error for unknown chunk preset")
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	defaults := DefaultConfig()
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"), Defaults: defaults})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"chunk length", func(c *Config) { c.Chunk.Length = 0 }},
		{"vocab size", func(c *Config) { c.Vocab.Size = -1 }},
		{"batch size", func(c *Config) { c.Eval.BatchSize = 0 }},
		{"blank unknown", func(c *Config) { c.Vocab.Unknown = " " }},
		{"spaced unknown", func(c *Config) { c.Vocab.Unknown = "U K" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

// chdir changes the working directory for the duration of the test
// (testing.T.Chdir is unavailable before Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
