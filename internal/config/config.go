// Package config loads and validates the YAML configuration that describes
// the message broker and the set of deployable runtimes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Error wraps a configuration problem with enough context to act on: which
// runtime (if any) and what was wrong.
type Error struct {
	Runtime string
	Msg     string
}

func (e *Error) Error() string {
	if e.Runtime == "" {
		return fmt.Sprintf("config: %s", e.Msg)
	}
	return fmt.Sprintf("config: runtime %q: %s", e.Runtime, e.Msg)
}

// Defaults applied to top-level fields left unset in the YAML document,
// mirroring DEFAULT_CONFIG_KEYS.
const (
	DefaultWorkerProcesses = 100
	DefaultMaxWorkers      = 100
	DefaultMaxTime         = "03:00:00"
)

// Config is the root configuration document.
type Config struct {
	// RabbitMQ holds the broker connection the controller and every
	// deployed worker pool share.
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`

	// WorkerProcesses is the invoke chunking granularity: the max number of
	// calls bundled into one published task message.
	WorkerProcesses int `yaml:"worker_processes"`

	// MaxWorkers bounds how many workers a single map call may use. Carried
	// for parity with the original backend; this core doesn't enforce it.
	MaxWorkers int `yaml:"max_workers"`

	// MaxTime is the default sbatch --time for runtimes that don't set
	// their own, formatted as "HH:MM:SS" or "D-HH:MM:SS".
	MaxTime string `yaml:"max_time"`

	// Runtimes maps a runtime name to its deployment parameters. At least
	// one entry is required.
	Runtimes map[string]Runtime `yaml:"runtimes"`

	// GekkoFS optionally configures the GekkoFS co-launch step for
	// runtimes that request it (see Runtime.Mode).
	GekkoFS *GekkoFSConfig `yaml:"gekkofs,omitempty"`

	// Audit optionally configures the deploy/stop audit trail. A nil value
	// disables audit logging entirely.
	Audit *AuditConfig `yaml:"audit,omitempty"`

	// Storage configures where the runtime registry (deployed job IDs) is
	// kept. Backend is "gcs" or "fs".
	Storage StorageConfig `yaml:"storage"`

	// Scheduler selects the batch-scheduler backend: "slurm" (default) or
	// "gcpbatch".
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// RabbitMQConfig holds the broker connection string.
type RabbitMQConfig struct {
	AMQPURL string `yaml:"amqp_url"`
}

// Runtime describes one deployable worker pool.
type Runtime struct {
	Account        string            `yaml:"account"`
	QOS            string            `yaml:"qos"`
	NumWorkers     int               `yaml:"num_workers"`
	CPUsWorker     int               `yaml:"cpus_worker"`
	CPUsTask       int               `yaml:"cpus_task,omitempty"`
	GPUsWorker     int               `yaml:"gpus_worker,omitempty"`
	MaxTime        string            `yaml:"max_time,omitempty"`
	Mode           string            `yaml:"mode,omitempty"`
	RMQQueue       string            `yaml:"rmq_queue,omitempty"`
	ExtraSlurmArgs map[string]string `yaml:"extra_slurm_args,omitempty"`

	// MaxTasksWorker is computed by Load from CPUsWorker/CPUsTask, not read
	// from YAML.
	MaxTasksWorker int `yaml:"-"`
}

// GekkoFSConfig parameterizes the GekkoFS co-launch script.
type GekkoFSConfig struct {
	MountBase string `yaml:"mount_base"`
	MountDir  string `yaml:"mount_dir"`
}

// AuditConfig configures the optional Spanner-backed deploy/stop log.
type AuditConfig struct {
	ProjectID string `yaml:"project_id"`
	Instance  string `yaml:"instance"`
	Database  string `yaml:"database"`
}

// StorageConfig selects and parameterizes the runtime registry backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "gcs" or "fs"
	Bucket  string `yaml:"bucket,omitempty"`
	Root    string `yaml:"root,omitempty"` // fs backend only
}

// SchedulerConfig selects the batch-scheduler backend.
type SchedulerConfig struct {
	Backend   string `yaml:"backend"` // "slurm" (default) or "gcpbatch"
	ProjectID string `yaml:"project_id,omitempty"`
	Region    string `yaml:"region,omitempty"`
}

// Load reads, defaults, and validates a Config from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.WorkerProcesses == 0 {
		cfg.WorkerProcesses = DefaultWorkerProcesses
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.MaxTime == "" {
		cfg.MaxTime = DefaultMaxTime
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "fs"
	}
	if cfg.Scheduler.Backend == "" {
		cfg.Scheduler.Backend = "slurm"
	}
}

// Validate checks the structural invariants load_config enforced: a
// non-empty runtime map, required per-runtime fields, a consistent
// cpus_task/cpus_worker relationship, and a configured broker URL.
func (c *Config) Validate() error {
	if len(c.Runtimes) == 0 {
		return &Error{Msg: "at least one runtime must be defined"}
	}

	for name, rt := range c.Runtimes {
		if rt.Account == "" {
			return &Error{Runtime: name, Msg: "'account' is required"}
		}
		if rt.QOS == "" {
			return &Error{Runtime: name, Msg: "'qos' is required"}
		}
		if rt.NumWorkers <= 0 {
			return &Error{Runtime: name, Msg: "'num_workers' must be positive"}
		}
		if rt.CPUsWorker <= 0 {
			return &Error{Runtime: name, Msg: "'cpus_worker' must be positive"}
		}

		maxTasks := rt.CPUsWorker
		if rt.CPUsTask > 0 {
			maxTasks = rt.CPUsWorker / rt.CPUsTask
		}
		if maxTasks <= 0 {
			return &Error{Runtime: name, Msg: "'cpus_task' must be lower than or equal to 'cpus_worker'"}
		}
		rt.MaxTasksWorker = maxTasks

		if rt.MaxTime == "" {
			rt.MaxTime = c.MaxTime
		}
		c.Runtimes[name] = rt
	}

	if c.RabbitMQ.AMQPURL == "" {
		return &Error{Msg: "rabbitmq.amqp_url is required"}
	}

	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.Bucket == "" {
			return &Error{Msg: "storage.bucket is required for the gcs backend"}
		}
	case "fs":
		// Root defaults to the current directory if unset; nothing to
		// validate.
	default:
		return &Error{Msg: fmt.Sprintf("unsupported storage backend %q", c.Storage.Backend)}
	}

	switch c.Scheduler.Backend {
	case "slurm":
	case "gcpbatch":
		if c.Scheduler.ProjectID == "" || c.Scheduler.Region == "" {
			return &Error{Msg: "scheduler.project_id and scheduler.region are required for the gcpbatch backend"}
		}
	default:
		return &Error{Msg: fmt.Sprintf("unsupported scheduler backend %q", c.Scheduler.Backend)}
	}

	return nil
}

// ParseMaxTime parses a Slurm-style "D-HH:MM:SS", "HH:MM:SS", or "MM:SS"
// duration string, as accepted by the max_time runtime field.
func ParseMaxTime(s string) (time.Duration, error) {
	days := 0
	rest := s
	if d, r, ok := strings.Cut(s, "-"); ok {
		var err error
		days, err = strconv.Atoi(d)
		if err != nil {
			return 0, fmt.Errorf("config: invalid max_time %q: %w", s, err)
		}
		rest = r
	}

	parts := strings.Split(rest, ":")
	var hours, minutes, seconds int
	var err error
	switch len(parts) {
	case 3:
		hours, err = strconv.Atoi(parts[0])
		if err == nil {
			minutes, err = strconv.Atoi(parts[1])
		}
		if err == nil {
			seconds, err = strconv.Atoi(parts[2])
		}
	case 2:
		minutes, err = strconv.Atoi(parts[0])
		if err == nil {
			seconds, err = strconv.Atoi(parts[1])
		}
	default:
		err = fmt.Errorf("expected HH:MM:SS or MM:SS")
	}
	if err != nil {
		return 0, fmt.Errorf("config: invalid max_time %q: %w", s, err)
	}

	total := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
	return total, nil
}
