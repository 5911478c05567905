package slurm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// falseBoolean is an internal sentinel returned by formatValue for a
// directive explicitly set to false: the directive is a bare flag, so a
// false value means "omit it entirely" rather than "render empty".
const falseBoolean = "\x00false\x00"

// Range renders as Slurm's inclusive a-b[:step] array syntax, e.g.
// Range{Start: 0, Stop: 10, Step: 2} -> "0-9:2".
type Range struct {
	Start, Stop, Step int
}

// Script accumulates sbatch directives and shell commands, then renders the
// full here-doc body sbatch expects on stdin.
type Script struct {
	directives map[string]string
	order      []string
	commands   []string
}

// NewScript returns an empty script builder.
func NewScript() *Script {
	return &Script{directives: make(map[string]string)}
}

// Set assigns value to a named sbatch directive (long form, underscores
// allowed, e.g. "cpus_per_task"). Returns an error if key is not a
// recognized sbatch directive. Setting a bool false omits the directive,
// matching sbatch's bare-flag semantics.
func (s *Script) Set(key string, value any) error {
	if !validDirectives[key] {
		return fmt.Errorf("slurm: unknown sbatch directive %q", key)
	}
	rendered := formatValue(value)
	if rendered == falseBoolean {
		if _, exists := s.directives[key]; exists {
			delete(s.directives, key)
			if i := indexOf(s.order, key); i >= 0 {
				s.order = append(s.order[:i], s.order[i+1:]...)
			}
		}
		return nil
	}
	if _, exists := s.directives[key]; !exists {
		s.order = append(s.order, key)
	}
	s.directives[key] = rendered
	return nil
}

// AddCommand appends a shell command line to the script body. Multiple
// tokens are joined with spaces, mirroring add_cmd's variadic-token form.
func (s *Script) AddCommand(tokens ...string) {
	cmd := strings.TrimSpace(strings.Join(tokens, " "))
	if cmd != "" {
		s.commands = append(s.commands, cmd)
	}
}

// Render produces the full sbatch script body: a shebang line, one
// "#SBATCH --key value" line per directive (in the order first set), then
// the accumulated commands. When escapeDollar is true (the default for
// here-doc submission) '$' in each command is escaped so the shell running
// the here-doc doesn't expand it before sbatch sees it.
func (s *Script) Render(shell string, escapeDollar bool) string {
	if shell == "" {
		shell = "/bin/bash"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#!%s\n\n", shell)

	keys := make([]string, len(s.order))
	copy(keys, s.order)
	sort.SliceStable(keys, func(i, j int) bool {
		return indexOf(s.order, keys[i]) < indexOf(s.order, keys[j])
	})
	for _, k := range keys {
		fmt.Fprintf(&b, "#SBATCH --%-19s %s\n", strings.ReplaceAll(k, "_", "-"), s.directives[k])
	}
	b.WriteString("\n")

	cmds := make([]string, len(s.commands))
	for i, cmd := range s.commands {
		if escapeDollar {
			cmd = strings.ReplaceAll(cmd, "$", "\\$")
		}
		cmds[i] = cmd
	}
	b.WriteString(strings.Join(cmds, "\n"))

	return strings.TrimSpace(b.String()) + "\n"
}

func indexOf(haystack []string, needle string) int {
	for i, v := range haystack {
		if v == needle {
			return i
		}
	}
	return -1
}

// formatValue renders a directive value following the same per-type rules as
// the original fmt_value: ranges become "start-stop[:step]", maps become
// comma-joined "k:v" pairs, durations become Slurm's "D-HH:MM:SS", slices are
// recursively joined with commas, and bare bools become an empty string (set)
// or falseBoolean (unset).
func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case bool:
		if v {
			return ""
		}
		return falseBoolean
	case Range:
		stop := v.Stop - 1
		if v.Step == 0 || v.Step == 1 {
			return fmt.Sprintf("%d-%d", v.Start, stop)
		}
		return fmt.Sprintf("%d-%d:%d", v.Start, stop, v.Step)
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s:%s", k, v[k])
		}
		return strings.Join(parts, ",")
	case time.Duration:
		return formatDuration(v)
	case []string:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ",")
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// formatDuration renders d as Slurm's "days-HH:MM:SS" duration syntax.
func formatDuration(d time.Duration) string {
	total := int64(d.Seconds())
	days := total / 86400
	total -= days * 86400
	hours := total / 3600
	total -= hours * 3600
	minutes := total / 60
	seconds := total - minutes*60
	return fmt.Sprintf("%d-%02d:%02d:%02d", days, hours, minutes, seconds)
}
