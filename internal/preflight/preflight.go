package preflight

import (
	"context"
	"strings"

	"encodefleet/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Blob directory", cfg.Paths.BlobDir),
	}

	if cfg.Instance.ExecuteJobs {
		if cfg.Executor.WorkDir != "" {
			results = append(results, CheckDirectoryAccess("Work directory", cfg.Executor.WorkDir))
		}
		requirements := []Requirement{
			{Name: "Encoder", Command: cfg.Executor.Binary, Description: "Runs every job output"},
		}
		if strings.TrimSpace(cfg.Executor.ProbeBinary) != "" {
			requirements = append(requirements, Requirement{
				Name:        "Probe",
				Command:     cfg.Executor.ProbeBinary,
				Description: "Records media specs of produced outputs",
				Optional:    true,
			})
		}
		results = append(results, CheckBinaries(requirements)...)
	}

	if cfg.Notifications.Enabled && cfg.Instance.Type == config.InstanceTypeMaster && cfg.Notifications.RedisAddr != "" {
		results = append(results, CheckRedis(ctx, cfg.Notifications.RedisAddr))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
