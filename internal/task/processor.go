package task

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/internal/observability/alerting"
	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

// Executor runs a named action. The agent satisfies it.
type Executor interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Processor consumes invocation ids, runs them through the Executor and
// records the outcome.
type Processor struct {
	executor      Executor
	store         Store
	consumer      Consumer
	producer      Producer
	workerCount   int
	retryBackoff  time.Duration
	invokeTimeout time.Duration
	failureLimit  int
	network       string
	address       string
	logger        *slog.Logger
	alerter       alerting.Dispatcher
	serial        map[string]struct{}

	// walletMu orders runs of serial actions.
	walletMu sync.Mutex

	mu       sync.Mutex
	failures int
	cancel   context.CancelCauseFunc
}

type ProcessorOption func(*Processor)

func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = log }
}

func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) { p.alerter = dispatcher }
}

// WithRetryBackoff sets the base delay before a retry. The n-th retry waits n times this.
func WithRetryBackoff(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d >= 0 {
			p.retryBackoff = d
		}
	}
}

// WithInvokeTimeout bounds a single action run.
func WithInvokeTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.invokeTimeout = d
		}
	}
}

// WithFailureLimit stops Start after n consecutive failed runs. Zero disables it.
func WithFailureLimit(n int) ProcessorOption {
	return func(p *Processor) {
		if n >= 0 {
			p.failureLimit = n
		}
	}
}

// WithIdentity stamps results with the wallet the processor acts for.
func WithIdentity(network, address string) ProcessorOption {
	return func(p *Processor) {
		p.network = network
		p.address = address
	}
}

// WithSerialActions runs the named actions one at a time across all workers.
// Actions that spend from the wallet go here: concurrent sends would race
// for the same seqno.
func WithSerialActions(names ...string) ProcessorOption {
	return func(p *Processor) {
		if p.serial == nil {
			p.serial = make(map[string]struct{}, len(names))
		}
		for _, name := range names {
			p.serial[name] = struct{}{}
		}
	}
}

func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:     executor,
		store:        store,
		consumer:     consumer,
		producer:     producer,
		workerCount:  1,
		retryBackoff: 2 * time.Second,
		logger:       logger.Named("task.processor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("task.processor")
	}
	return p
}

// Start consumes until ctx is done. When the failure limit trips it returns
// an error with CodeFailureLimit.
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "no task consumer configured")
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	p.mu.Lock()
	p.cancel = cancel
	p.failures = 0
	p.mu.Unlock()

	err := p.consumer.Consume(ctx, p.workerCount, p.handle)
	if cause := context.Cause(ctx); xerrors.Is(cause, CodeFailureLimit) {
		return cause
	}
	return err
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "processor is not initialised")
	}
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) || stdErrors.Is(err, ErrTaskExhausted) || stdErrors.Is(err, ErrTaskConflict) {
			p.logger.Debug("skipping invocation", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("failed to claim invocation", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskProcessing, err, "claim")
		return err
	}

	if _, ok := p.serial[task.Action]; ok {
		p.walletMu.Lock()
		defer p.walletMu.Unlock()
	}

	runCtx := ctx
	if p.invokeTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.invokeTimeout)
		defer cancel()
	}
	started := time.Now()
	output, execErr := p.executor.Invoke(runCtx, task.Action, task.Arguments)
	if execErr != nil {
		err := p.handleExecutionFailure(ctx, task, execErr)
		p.recordOutcome(false)
		return err
	}

	record := ExecutionResult{
		Output:         output,
		Network:        p.network,
		Address:        p.address,
		DurationMillis: time.Since(started).Milliseconds(),
	}
	if err := p.store.MarkSucceeded(ctx, task.ID, record); err != nil {
		// Not requeued: the action already took effect.
		p.logger.Error("failed to record invocation result", slog.Any("error", err), slog.String("task_id", task.ID))
		p.emitAlert(ctx, task, xerrors.CodeStorageFailure, err, "record")
		return err
	}
	p.recordOutcome(true)
	logger.Audit().Info("invocation succeeded",
		slog.String("task_id", task.ID),
		slog.String("action", task.Action),
		slog.Int("attempt", task.Attempts),
		slog.Int64("duration_ms", record.DurationMillis),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, task *Task, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := task.Attempts >= task.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, task.ID, code, execErr.Error(), terminal); storeErr != nil {
		p.logger.Error("failed to record invocation failure", slog.Any("error", storeErr), slog.String("task_id", task.ID))
		return storeErr
	}
	logger.Audit().Warn("invocation failed",
		slog.String("task_id", task.ID),
		slog.String("action", task.Action),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	stage := "retry"
	switch {
	case !retryable:
		stage = "non_retryable"
	case terminal:
		stage = "terminal"
	}
	if terminal || xerrors.ShouldAlert(execErr) {
		p.emitAlert(ctx, task, code, execErr, stage)
	}

	if terminal {
		return nil
	}
	if delay := p.backoff(task.Attempts); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
	if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
		return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("requeue invocation %s", task.ID))
	}
	p.logger.Debug("invocation requeued", slog.String("task_id", task.ID), slog.Int("attempts", task.Attempts))
	return nil
}

func (p *Processor) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * p.retryBackoff
}

func (p *Processor) recordOutcome(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.failures = 0
		return
	}
	p.failures++
	if p.failureLimit > 0 && p.failures >= p.failureLimit && p.cancel != nil {
		p.logger.Error("consecutive failure limit reached, stopping processor", slog.Int("failures", p.failures))
		p.cancel(xerrors.New(CodeFailureLimit, fmt.Sprintf("%d consecutive invocations failed", p.failures)))
	}
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:       code,
		Message:    attrs.Message,
		Severity:   xerrors.SeverityOf(cause),
		TaskID:     task.ID,
		Action:     task.Action,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   map[string]string{"stage": stage, "attempt": strconv.Itoa(task.Attempts)},
		OccurredAt: time.Now(),
	}
	if cause != nil {
		event.Message = cause.Error()
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("failed to deliver alert",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
			slog.String("stage", stage),
		)
	}
}
