package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe/internal/domain"
)

// dispatch is one in-flight executor call. It holds the slot the call runs
// in until either the continuation finishes or the task is paused or
// cancelled, whichever happens first.
type dispatch struct {
	taskID  uuid.UUID
	attempt int
	ctx     context.Context
	cancel  context.CancelFunc
	slot    *Slot
	once    sync.Once
}

// stop cancels the executor context and frees the slot. Safe to call from
// several goroutines; only the first call has an effect.
func (d *dispatch) stop() {
	d.once.Do(func() {
		d.cancel()
		d.slot.Release()
	})
}

// stale reports whether the dispatch was abandoned, so its result must be
// discarded.
func (d *dispatch) stale() bool {
	return d.ctx.Err() != nil
}

type executorResult struct {
	transcript *domain.Transcript
	err        error
}

// runExecutor performs one transcription attempt bounded by timeout.
// Panics inside the executor become ErrExecutorFailure, expiry of the
// timeout becomes ErrTimeoutExceeded and any other executor error is wrapped
// in ErrExecutorFailure. When ctx is cancelled it returns ctx.Err() without
// waiting for the executor.
func runExecutor(
	ctx context.Context,
	executor Executor,
	t domain.Task,
	timeout time.Duration,
	onProgress ProgressFunc,
) (*domain.Transcript, error) {
	runCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	resultCh := make(chan executorResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- executorResult{err: fmt.Errorf("%w: executor panic: %v", domain.ErrExecutorFailure, r)}
			}
		}()
		transcript, err := executor.Transcribe(runCtx, t.SourceFileID, t.Options.Language, onProgress)
		resultCh <- executorResult{transcript: transcript, err: err}
	}()

	select {
	case res := <-resultCh:
		switch {
		case res.err != nil && errors.Is(res.err, domain.ErrExecutorFailure):
			return nil, res.err
		case res.err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: transcription exceeded %s", domain.ErrTimeoutExceeded, timeout)
		case res.err != nil:
			return nil, fmt.Errorf("%w: %w", domain.ErrExecutorFailure, res.err)
		case res.transcript == nil:
			return nil, fmt.Errorf("%w: executor returned no transcript", domain.ErrExecutorFailure)
		}
		return res.transcript, nil
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: transcription exceeded %s", domain.ErrTimeoutExceeded, timeout)
	}
}
