package slurm

// sbatchArguments is the allow-list of sbatch directives this package will
// render, each entry a long name optionally paired with its short flag.
// Mirrors the sbatch(1) option table; anything not listed here is rejected
// by Script.Set so a typo in a directive name fails fast instead of being
// silently dropped by sbatch.
var sbatchArguments = [][2]string{
	{"account", "A"},
	{"acctg_freq", ""},
	{"array", "a"},
	{"batch", ""},
	{"bb", ""},
	{"bbf", ""},
	{"begin", "b"},
	{"chdir", "D"},
	{"cluster_constraint", ""},
	{"clusters", "M"},
	{"comment", ""},
	{"constraint", "C"},
	{"container", ""},
	{"container_id", ""},
	{"contiguous", ""},
	{"core_spec", "S"},
	{"cores_per_socket", ""},
	{"cpu_freq", ""},
	{"cpus_per_gpu", ""},
	{"cpus_per_task", "c"},
	{"deadline", ""},
	{"delay_boot", ""},
	{"dependency", "d"},
	{"distribution", "m"},
	{"error", "e"},
	{"exclude", "x"},
	{"exclusive", ""},
	{"export", ""},
	{"export_file", ""},
	{"extra", ""},
	{"extra_node_info", "B"},
	{"get_user_env", ""},
	{"gid", ""},
	{"gpu_bind", ""},
	{"gpu_freq", ""},
	{"gpus_per_node", ""},
	{"gpus_per_socket", ""},
	{"gpus_per_task", ""},
	{"gpus", "G"},
	{"gres", ""},
	{"gres_flags", ""},
	{"hint", ""},
	{"hold", "H"},
	{"ignore_pbs", ""},
	{"input", "i"},
	{"job_name", "J"},
	{"kill_on_invalid_dep", ""},
	{"licenses", "L"},
	{"mail_type", ""},
	{"mail_user", ""},
	{"mcs_label", ""},
	{"mem", ""},
	{"mem_bind", ""},
	{"mem_per_cpu", ""},
	{"mem_per_gpu", ""},
	{"mincpus", ""},
	{"network", ""},
	{"nice", ""},
	{"no_kill", "k"},
	{"no_requeue", ""},
	{"nodefile", "F"},
	{"nodelist", "w"},
	{"nodes", "N"},
	{"ntasks_per_core", ""},
	{"ntasks_per_gpu", ""},
	{"ntasks_per_node", ""},
	{"ntasks_per_socket", ""},
	{"ntasks", "n"},
	{"open_mode", ""},
	{"output", "o"},
	{"overcommit", "O"},
	{"oversubscribe", "s"},
	{"partition", "p"},
	{"power", ""},
	{"prefer", ""},
	{"priority", ""},
	{"profile", ""},
	{"propagate", ""},
	{"qos", "q"},
	{"quiet", "Q"},
	{"reboot", ""},
	{"requeue", ""},
	{"reservation", ""},
	{"signal", ""},
	{"sockets_per_node", ""},
	{"spread_job", ""},
	{"switches", ""},
	{"test_only", ""},
	{"thread_spec", ""},
	{"threads_per_core", ""},
	{"time_min", ""},
	{"time", "t"},
	{"tmp", ""},
	{"tres_per_task", ""},
	{"uid", ""},
	{"use_min_nodes", ""},
	{"verbose", "v"},
	{"wait_all_nodes", ""},
	{"wait", "W"},
	{"wckey", ""},
	{"wrap", ""},
}

// validDirectives is sbatchArguments indexed by long name for O(1) lookup.
var validDirectives = func() map[string]bool {
	m := make(map[string]bool, len(sbatchArguments))
	for _, pair := range sbatchArguments {
		m[pair[0]] = true
	}
	return m
}()

// Filename pattern tokens sbatch expands in --output/--error/--job-name.
const (
	PatternJobID   = "%j"
	PatternHost    = "%N"
	PatternJobName = "%x"
)
