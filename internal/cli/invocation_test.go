package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cmutils/internal/apperrors"
	"cmutils/internal/config"
)

type files struct {
	launcher string
	seq      string
	dir      string
}

func newFiles(t *testing.T) files {
	t.Helper()
	dir := t.TempDir()
	f := files{
		launcher: filepath.Join(dir, "topcons2_wsdl.py"),
		seq:      filepath.Join(dir, "COX3gg.fasta"),
		dir:      dir,
	}
	for _, p := range []string{f.launcher, f.seq} {
		if err := os.WriteFile(p, []byte("x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func defaults() *config.Defaults {
	return &config.Defaults{
		Interpreter:  "python3",
		OutputDir:    "output_topcons",
		PollInterval: 60 * time.Second,
		MaxPolls:     240,
		Runner:       config.RunnerExec,
		DockerImage:  "python:3.12-slim",
	}
}

func TestParseInvocation_Defaults(t *testing.T) {
	t.Parallel()
	f := newFiles(t)

	inv, err := ParseInvocation([]string{"-launcher", f.launcher, "-seq", f.seq, "-octopus-out", "out/"}, defaults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.PollInterval != 60*time.Second || inv.MaxPolls != 240 {
		t.Errorf("poll settings = %v x %d", inv.PollInterval, inv.MaxPolls)
	}
	if inv.OutputDir != "output_topcons" || inv.Interpreter != "python3" || inv.Runner != config.RunnerExec {
		t.Errorf("defaults not applied: %+v", inv)
	}
	if inv.SpanColumns != 4 || inv.KeepArchive || inv.SkipOutput {
		t.Errorf("unexpected flag defaults: %+v", inv)
	}
}

func TestParseInvocation_FlagsOverrideDefaults(t *testing.T) {
	t.Parallel()
	f := newFiles(t)
	d := defaults()
	d.Launcher = "/does/not/matter"

	inv, err := ParseInvocation([]string{
		"-launcher", f.launcher,
		"-seq", f.seq,
		"-jobname", "cox3",
		"-email", "a@b.c",
		"-output-dir", f.dir,
		"-poll", "0.5",
		"-max-polls", "3",
		"-extract-dir", filepath.Join(f.dir, "x"),
		"-keep-zip",
		"-octopus-out", filepath.Join(f.dir, "cox3.octopus"),
		"-span-out", f.dir + "/",
		"-span-columns", "2",
		"-runner", "docker",
		"-docker-image", "python:3.11",
		"-status-addr", ":9090",
		"-callback-url", "http://hooks.local/topcons",
	}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", inv.PollInterval)
	}
	if inv.Launcher != f.launcher || inv.Runner != config.RunnerDocker || inv.DockerImage != "python:3.11" {
		t.Errorf("flags not applied: %+v", inv)
	}

	cfg := inv.PipelineConfig()
	if cfg.SequencePath != f.seq || cfg.JobName != "cox3" || cfg.Email != "a@b.c" || cfg.MaxPolls != 3 {
		t.Errorf("unexpected pipeline config %+v", cfg)
	}
	if !cfg.KeepArchive || cfg.SkipOutput || cfg.SpanColumns != 2 || cfg.SpanPath != f.dir+"/" || cfg.Runner != "docker" {
		t.Errorf("unexpected pipeline config %+v", cfg)
	}
}

func TestParseInvocation_NoOctopus(t *testing.T) {
	t.Parallel()
	f := newFiles(t)

	inv, err := ParseInvocation([]string{"-launcher", f.launcher, "-seq", f.seq, "-no-octopus"}, defaults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inv.PipelineConfig().SkipOutput {
		t.Error("expected SkipOutput")
	}
}

func TestParseInvocation_UsageErrors(t *testing.T) {
	t.Parallel()
	f := newFiles(t)
	base := []string{"-launcher", f.launcher, "-seq", f.seq, "-octopus-out", "out/"}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing launcher", []string{"-seq", f.seq, "-octopus-out", "o"}, "-launcher is required"},
		{"launcher not a file", []string{"-launcher", f.dir, "-seq", f.seq, "-octopus-out", "o"}, "launcher not found"},
		{"missing seq", []string{"-launcher", f.launcher, "-octopus-out", "o"}, "-seq is required"},
		{"seq not found", []string{"-launcher", f.launcher, "-seq", filepath.Join(f.dir, "nope.fasta"), "-octopus-out", "o"}, "seq file not found"},
		{"missing octopus-out", []string{"-launcher", f.launcher, "-seq", f.seq}, "-octopus-out is required"},
		{"span without output", []string{"-launcher", f.launcher, "-seq", f.seq, "-no-octopus", "-span-out", "s"}, "-span-out cannot be combined"},
		{"bad columns", append(base, "-span-columns", "3"), "-span-columns must be 2 or 4"},
		{"bad runner", append(base, "-runner", "k8s"), "invalid -runner"},
		{"zero polls", append(base, "-max-polls", "0"), "-max-polls must be at least 1"},
		{"negative poll", append(base, "-poll", "-1"), "-poll must not be negative"},
		{"unknown flag", append(base, "-bogus"), "flag provided but not defined"},
		{"positional", append(base, "extra"), "unexpected positional arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseInvocation(tt.args, defaults())
			var invErr *InvocationError
			if !errors.As(err, &invErr) {
				t.Fatalf("expected InvocationError, got %v", err)
			}
			if invErr.ExitCode != apperrors.ExitUsage || ExitCode(err) != apperrors.ExitUsage {
				t.Errorf("exit code = %d, want %d", invErr.ExitCode, apperrors.ExitUsage)
			}
			if !strings.Contains(invErr.Message, tt.want) {
				t.Errorf("message %q does not contain %q", invErr.Message, tt.want)
			}
		})
	}
}

func TestParseInvocation_Help(t *testing.T) {
	t.Parallel()
	_, err := ParseInvocation([]string{"-h"}, defaults())

	if got := ExitCode(err); got != apperrors.ExitSuccess {
		t.Errorf("ExitCode = %d, want 0", got)
	}
	if !strings.Contains(err.Error(), "-octopus-out") {
		t.Errorf("expected usage text, got %q", err.Error())
	}
}

func TestExitCode_FallsBackToRunErrors(t *testing.T) {
	t.Parallel()
	if got := ExitCode(apperrors.ArtifactMissing("/x", "query.result.txt")); got != apperrors.ExitArtifactMissing {
		t.Errorf("ExitCode = %d, want %d", got, apperrors.ExitArtifactMissing)
	}
	if got := ExitCode(nil); got != apperrors.ExitSuccess {
		t.Errorf("ExitCode(nil) = %d", got)
	}
}
