package encoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"encodefleet/internal/blob"
	"encodefleet/internal/config"
	"encodefleet/internal/logging"
	"encodefleet/internal/queue"
	"encodefleet/internal/services"
)

// Executor runs a dispatched job to completion. The returned outcome is
// stored on the job; a nil error marks the job SUCCESSFUL.
type Executor interface {
	Execute(ctx context.Context, job *queue.Job) (json.RawMessage, error)
}

// Runner executes jobs with the configured encoder binary.
type Runner struct {
	store       *queue.Store
	blobs       blob.Store
	binary      string
	probeBinary string
	workDir     string
	logger      *slog.Logger
}

// NewRunner constructs a Runner from configuration.
func NewRunner(cfg *config.Config, store *queue.Store, blobs blob.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		store:       store,
		blobs:       blobs,
		binary:      cfg.Executor.Binary,
		probeBinary: cfg.Executor.ProbeBinary,
		workDir:     cfg.Executor.WorkDir,
		logger:      logger.With(logging.String(logging.FieldComponent, "encoding")),
	}
}

// OutputSummary is one entry of a job outcome.
type OutputSummary struct {
	Name    string             `json:"name"`
	Status  queue.OutputStatus `json:"status"`
	BlobKey string             `json:"blob_key,omitempty"`
	Size    int64              `json:"size,omitempty"`
	SHA256  string             `json:"sha256,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Outcome is the JSON stored on a job when execution ends.
type Outcome struct {
	Outputs []OutputSummary `json:"outputs,omitempty"`
	Failed  int             `json:"failed"`
	Error   string          `json:"error,omitempty"`
	Kind    string          `json:"kind,omitempty"`
}

type workItem struct {
	spec     OutputSpec
	existing *queue.Output
}

// Execute produces every outstanding output of job.
func (r *Runner) Execute(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
	logger := logging.WithContext(ctx, r.logger).With(
		logging.JobKey(job.Key),
		logging.Int("attempt", job.Attempt),
	)

	input, err := ParseInput(job.Input)
	if err != nil {
		return failureOutcome(nil, err), err
	}

	work, err := r.plan(ctx, job.Key, input)
	if err != nil {
		return failureOutcome(nil, err), err
	}

	jobDir := filepath.Join(r.workDir, job.Key)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		err = services.Wrap(services.ErrConfiguration, "encoding", "create work directory", jobDir, err)
		return failureOutcome(nil, err), err
	}
	defer func() {
		if err := os.RemoveAll(jobDir); err != nil {
			logger.Warn("failed to remove job work directory",
				logging.Error(err),
				logging.String(logging.FieldEventType, "work_dir_cleanup_failed"),
				logging.String("path", jobDir),
			)
		}
	}()

	logger.Info("executing job", logging.Int("outputs", len(work)), logging.String("source", input.Source))

	summaries := make([]OutputSummary, 0, len(work))
	failed := 0
	for _, item := range work {
		if ctx.Err() != nil {
			break
		}
		summary := r.produce(ctx, logger, job.Key, input.Source, jobDir, item)
		if summary.Status != queue.OutputSuccessful {
			failed++
		}
		summaries = append(summaries, summary)
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = services.Wrap(services.ErrTimeout, "encoding", "execute job", "job timeout reached", ctx.Err())
	case errors.Is(ctx.Err(), context.Canceled):
		err = services.Wrap(services.ErrCanceled, "encoding", "execute job", "execution cancelled", ctx.Err())
	case failed > 0:
		err = services.Wrap(services.ErrExternalTool, "encoding", "execute job", fmt.Sprintf("%d of %d outputs failed", failed, len(work)), nil)
	}
	if err != nil {
		return failureOutcome(summaries, err), err
	}
	return marshalOutcome(Outcome{Outputs: summaries}), nil
}

// plan decides which outputs to produce. PENDING rows left by an output
// retry take precedence; otherwise every declared output without a
// SUCCESSFUL row is produced.
func (r *Runner) plan(ctx context.Context, jobKey string, input JobInput) ([]workItem, error) {
	specs := make(map[string]OutputSpec, len(input.Outputs))
	for _, spec := range input.Outputs {
		specs[spec.Name] = spec
	}

	pending, err := r.store.PendingOutputs(ctx, jobKey)
	if err != nil {
		return nil, fmt.Errorf("load pending outputs: %w", err)
	}
	if len(pending) > 0 {
		work := make([]workItem, 0, len(pending))
		for _, out := range pending {
			spec, ok := specs[out.Name]
			if !ok {
				spec = OutputSpec{Name: out.Name}
			}
			work = append(work, workItem{spec: spec, existing: out})
		}
		return work, nil
	}

	done, _, err := r.store.ListOutputs(ctx, queue.OutputFilter{
		JobKeys:  []string{jobKey},
		Statuses: []queue.OutputStatus{queue.OutputSuccessful},
	}, queue.Page{})
	if err != nil {
		return nil, fmt.Errorf("load finished outputs: %w", err)
	}
	produced := make(map[string]struct{}, len(done))
	for _, out := range done {
		produced[out.Name] = struct{}{}
	}
	work := make([]workItem, 0, len(input.Outputs))
	for _, spec := range input.Outputs {
		if _, ok := produced[spec.Name]; ok {
			continue
		}
		work = append(work, workItem{spec: spec})
	}
	return work, nil
}

func (r *Runner) produce(ctx context.Context, logger *slog.Logger, jobKey, source, jobDir string, item workItem) OutputSummary {
	summary := OutputSummary{Name: item.spec.Name, Status: queue.OutputFailed}
	outLogger := logger.With(logging.String("output", item.spec.Name))
	target := filepath.Join(jobDir, blobSafeName(jobKey, item.spec.Name))

	var (
		specs   json.RawMessage
		blobKey string
		info    blob.Info
	)
	err := runEncoder(ctx, outLogger, r.binary, encoderArgs(source, item.spec, target))
	if err == nil {
		specs = r.inspect(ctx, outLogger, target)
		info, err = r.upload(ctx, jobKey, item.spec.Name, target)
		blobKey = info.Key
	}
	if err == nil {
		summary.Status = queue.OutputSuccessful
		summary.BlobKey = blobKey
		summary.Size = info.Size
		summary.SHA256 = info.SHA256
		outLogger.Info("output produced", logging.String("blob_key", blobKey), logging.Int64("size", info.Size))
	} else {
		summary.Error = err.Error()
		outLogger.Warn("output failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "output_failed"),
			logging.String(logging.FieldErrorHint, "inspect encoder arguments and source availability"),
		)
	}

	record := queue.OutputRecord{
		JobKey:  jobKey,
		Name:    item.spec.Name,
		Status:  summary.Status,
		Outcome: marshalSummary(summary),
		Specs:   specs,
		BlobKey: blobKey,
		Error:   summary.Error,
	}
	// Writes use a fresh context so a cancelled run still leaves its rows.
	writeCtx := context.WithoutCancel(ctx)
	if item.existing != nil {
		if _, werr := r.store.UpdateOutput(writeCtx, item.existing.Key, record); werr != nil {
			outLogger.Warn("failed to update output", logging.Error(werr), logging.String(logging.FieldEventType, "output_record_failed"))
		}
	} else if _, werr := r.store.RecordOutput(writeCtx, record); werr != nil {
		outLogger.Warn("failed to record output", logging.Error(werr), logging.String(logging.FieldEventType, "output_record_failed"))
	}
	return summary
}

func (r *Runner) inspect(ctx context.Context, logger *slog.Logger, path string) json.RawMessage {
	if r.probeBinary == "" {
		return nil
	}
	specs, err := probeMedia(ctx, r.probeBinary, path)
	if err != nil {
		logger.Warn("output probe failed; specs omitted",
			logging.Error(err),
			logging.String(logging.FieldEventType, "output_probe_failed"),
			logging.String(logging.FieldImpact, "output row has no media specs"),
		)
		return nil
	}
	raw, err := json.Marshal(specs)
	if err != nil {
		return nil
	}
	return raw
}

func (r *Runner) upload(ctx context.Context, jobKey, name, path string) (blob.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return blob.Info{}, services.Wrap(services.ErrExternalTool, "encoding", "open output", "encoder produced no file", err)
	}
	defer f.Close()
	info, err := r.blobs.Put(ctx, blob.OutputKey(jobKey, name), f)
	if err != nil {
		return blob.Info{}, services.Wrap(services.ErrTransient, "encoding", "store output", "", err)
	}
	return info, nil
}

// blobSafeName returns the local file name used for an output.
func blobSafeName(jobKey, name string) string {
	return filepath.Base(blob.OutputKey(jobKey, name))
}

func failureOutcome(summaries []OutputSummary, err error) json.RawMessage {
	failed := 0
	for _, s := range summaries {
		if s.Status != queue.OutputSuccessful {
			failed++
		}
	}
	return marshalOutcome(Outcome{
		Outputs: summaries,
		Failed:  failed,
		Error:   err.Error(),
		Kind:    services.FailureKind(err),
	})
}

func marshalOutcome(outcome Outcome) json.RawMessage {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func marshalSummary(summary OutputSummary) json.RawMessage {
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil
	}
	return raw
}
