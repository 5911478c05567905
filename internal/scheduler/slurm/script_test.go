package slurm

import (
	"strings"
	"testing"
	"time"
)

func TestFormatValueRange(t *testing.T) {
	got := formatValue(Range{Start: 3, Stop: 15})
	if got != "3-14" {
		t.Errorf("Range{3,15}: got %q, want %q", got, "3-14")
	}
	got = formatValue(Range{Start: 0, Stop: 10, Step: 2})
	if got != "0-9:2" {
		t.Errorf("Range{0,10,2}: got %q, want %q", got, "0-9:2")
	}
}

func TestFormatValueMap(t *testing.T) {
	got := formatValue(map[string]string{"afterok": "34987", "after": "65541"})
	want := "after:65541,afterok:34987"
	if got != want {
		t.Errorf("map: got %q, want %q", got, want)
	}
}

func TestFormatValueDuration(t *testing.T) {
	d := 26*time.Hour + 3*time.Minute + 4*time.Second
	got := formatValue(d)
	if got != "1-02:03:04" {
		t.Errorf("duration: got %q, want %q", got, "1-02:03:04")
	}
}

func TestFormatValueBool(t *testing.T) {
	if got := formatValue(true); got != "" {
		t.Errorf("true: got %q, want empty", got)
	}
	if got := formatValue(false); got != falseBoolean {
		t.Errorf("false: got %q, want sentinel", got)
	}
}

func TestFormatValueStringSlice(t *testing.T) {
	got := formatValue([]string{"a", "b", "c"})
	if got != "a,b,c" {
		t.Errorf("slice: got %q, want %q", got, "a,b,c")
	}
}

func TestScriptSetUnknownDirective(t *testing.T) {
	s := NewScript()
	if err := s.Set("not_a_real_directive", "x"); err == nil {
		t.Fatal("expected error for unknown directive, got nil")
	}
}

func TestScriptSetFalseBoolOmitsDirective(t *testing.T) {
	s := NewScript()
	if err := s.Set("exclusive", true); err != nil {
		t.Fatalf("Set(exclusive, true): %v", err)
	}
	if err := s.Set("requeue", false); err != nil {
		t.Fatalf("Set(requeue, false): %v", err)
	}
	rendered := s.Render("/bin/bash", true)
	if !strings.Contains(rendered, "--exclusive") {
		t.Errorf("expected --exclusive directive present:\n%s", rendered)
	}
	if strings.Contains(rendered, "requeue") {
		t.Errorf("expected requeue directive omitted:\n%s", rendered)
	}
}

func TestScriptRenderEscapesDollar(t *testing.T) {
	s := NewScript()
	if err := s.Set("job_name", "worker"); err != nil {
		t.Fatal(err)
	}
	s.AddCommand("echo", "$HOME")
	rendered := s.Render("/bin/bash", true)
	if !strings.Contains(rendered, `\$HOME`) {
		t.Errorf("expected escaped $HOME in rendered script:\n%s", rendered)
	}
	if !strings.HasPrefix(rendered, "#!/bin/bash\n") {
		t.Errorf("expected shebang line, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, "#SBATCH --job-name") {
		t.Errorf("expected underscore converted to dash in directive key:\n%s", rendered)
	}
}

func TestScriptRenderNoEscape(t *testing.T) {
	s := NewScript()
	s.AddCommand("echo", "$HOME")
	rendered := s.Render("/bin/bash", false)
	if !strings.Contains(rendered, "echo $HOME") {
		t.Errorf("expected unescaped $HOME:\n%s", rendered)
	}
}
