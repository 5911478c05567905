package main

import (
	"context"
	"fmt"

	gstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"

	"github.com/neardata-eu/lithops-hpc/internal/audit"
	"github.com/neardata-eu/lithops-hpc/internal/broker/rabbitmq"
	"github.com/neardata-eu/lithops-hpc/internal/config"
	"github.com/neardata-eu/lithops-hpc/internal/controller"
	"github.com/neardata-eu/lithops-hpc/internal/registry"
	"github.com/neardata-eu/lithops-hpc/internal/scheduler"
	"github.com/neardata-eu/lithops-hpc/internal/scheduler/gcpbatch"
	"github.com/neardata-eu/lithops-hpc/internal/scheduler/slurm"
	"github.com/neardata-eu/lithops-hpc/internal/storage"
	"github.com/neardata-eu/lithops-hpc/internal/storage/fs"
	"github.com/neardata-eu/lithops-hpc/internal/storage/gcs"
)

// closer aggregates the resources newController opens so every subcommand
// can release them with a single deferred call.
type closer func()

// newController builds a Controller wired to the backends the loaded config
// selects: the Slurm or GCP Batch scheduler, the GCS or local-fs registry
// store, and the optional Spanner audit trail.
func newController(cmd *cobra.Command) (*controller.Controller, closer, error) {
	ctx := context.Background()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil, nil, fmt.Errorf("--config flag (or HPC_CONFIG env var) is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	brk := rabbitmq.New(cfg.RabbitMQ.AMQPURL)

	var sched scheduler.Adapter
	switch cfg.Scheduler.Backend {
	case "gcpbatch":
		sched, err = gcpbatch.New(ctx, cfg.Scheduler.ProjectID, cfg.Scheduler.Region)
		if err != nil {
			brk.Close()
			return nil, nil, fmt.Errorf("gcpbatch adapter: %w", err)
		}
	default:
		sched = slurm.NewAdapter()
	}

	var bucket storage.Bucket
	var gcsClient *gstorage.Client
	switch cfg.Storage.Backend {
	case "gcs":
		gcsClient, err = gstorage.NewClient(ctx)
		if err != nil {
			brk.Close()
			return nil, nil, fmt.Errorf("gcs client: %w", err)
		}
		bucket = gcs.New(gcsClient, cfg.Storage.Bucket)
	default:
		bucket = fs.New(cfg.Storage.Root)
	}
	reg := registry.New(bucket)

	var auditClient *audit.Client
	if cfg.Audit != nil {
		auditClient, err = audit.New(ctx, cfg.Audit.ProjectID, cfg.Audit.Instance, cfg.Audit.Database)
		if err != nil {
			brk.Close()
			if gcsClient != nil {
				gcsClient.Close()
			}
			return nil, nil, fmt.Errorf("audit client: %w", err)
		}
	}

	ctl := controller.New(cfg, brk, sched, reg, auditClient)

	return ctl, func() {
		brk.Close()
		if gcsClient != nil {
			gcsClient.Close()
		}
		if auditClient != nil {
			auditClient.Close()
		}
	}, nil
}
