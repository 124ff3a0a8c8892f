package metadata

import (
	"context"
	"encoding/json"
	"fmt"

	crawlerrors "github.com/PentesterFlow/SiteCrawler/internal/errors"
	"github.com/PentesterFlow/SiteCrawler/internal/logger"
)

// ProgressState is the observable progress of one run.
type ProgressState struct {
	Progress      float64 `json:"progress"`
	StatusMessage string  `json:"statusMessage"`
}

// Reporter writes and reads progress for a single run.
type Reporter struct {
	runID       string
	store       Store
	log         *logger.Logger
	broadcaster *Broadcaster
}

// NewReporter creates a reporter bound to runID's store. broadcaster may be nil.
func NewReporter(runID string, backend Backend, broadcaster *Broadcaster, log *logger.Logger) *Reporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Reporter{
		runID:       runID,
		store:       backend.Scope(runID),
		log:         log.WithComponent("metadata").WithRun(runID),
		broadcaster: broadcaster,
	}
}

// RunID returns the run this reporter is bound to.
func (r *Reporter) RunID() string {
	return r.runID
}

// SetProgress records percent and status. Write failures are logged and
// otherwise ignored; callers never wait on an acknowledgement.
func (r *Reporter) SetProgress(ctx context.Context, percent float64, status string) {
	if err := r.store.Set(ctx, KeyProgress, percent); err != nil {
		r.log.WithError(err).Warn("Failed to write progress")
	}
	if err := r.store.Set(ctx, KeyStatusMessage, status); err != nil {
		r.log.WithError(err).Warn("Failed to write status message")
	}
	r.log.Debugf("progress %.0f%%: %s", percent, status)

	if r.broadcaster != nil {
		r.broadcaster.Publish(r.runID, ProgressState{Progress: percent, StatusMessage: status})
	}
}

// GetProgress reads the current progress. A *errors.ValidationError is
// returned when the stored values have the wrong shape.
func (r *Reporter) GetProgress(ctx context.Context) (ProgressState, error) {
	return ReadProgress(ctx, r.store, r.log)
}

// ReadProgress reads and validates progress from any store.
func ReadProgress(ctx context.Context, store Store, log *logger.Logger) (ProgressState, error) {
	current, err := store.Current(ctx)
	if err != nil {
		return ProgressState{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	state, verr := validateProgress(current)
	if verr != nil {
		if log != nil {
			log.Warnf("Invalid progress metadata: %v", verr)
		}
		return ProgressState{}, verr
	}
	return state, nil
}

func validateProgress(current map[string]any) (ProgressState, *crawlerrors.ValidationError) {
	progress, ok := toFloat(current[KeyProgress])
	if !ok {
		return ProgressState{}, &crawlerrors.ValidationError{
			Field:    KeyProgress,
			Expected: "number",
			Got:      current[KeyProgress],
		}
	}

	status, ok := current[KeyStatusMessage].(string)
	if !ok {
		return ProgressState{}, &crawlerrors.ValidationError{
			Field:    KeyStatusMessage,
			Expected: "string",
			Got:      current[KeyStatusMessage],
		}
	}

	return ProgressState{Progress: progress, StatusMessage: status}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
