package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auto_xhs_publisher/config"
	"auto_xhs_publisher/generator"
	"auto_xhs_publisher/logger"
	"auto_xhs_publisher/media"
	"auto_xhs_publisher/publisher"
	"auto_xhs_publisher/search"
)

// Collaborator seams, narrowed to what the orchestrator calls.
type (
	// Retriever is the search collaborator.
	Retriever interface {
		Search(ctx context.Context, query string, maxResults int) (*search.Results, error)
	}
	// Compressor is the overflow summarizer.
	Compressor interface {
		MaybeCompress(ctx context.Context, content string, budget int) (string, error)
	}
	// Composer drafts the note.
	Composer interface {
		Draft(ctx context.Context, dctx generator.DraftContext, mode string) (generator.Draft, error)
	}
	// MediaSelector produces the bounded valid image set.
	MediaSelector interface {
		Select(ctx context.Context, query string, minCount, maxCount int) ([]media.Candidate, error)
	}
	// Submitter hands the finished note to the automation service.
	Submitter interface {
		Publish(ctx context.Context, draft generator.Draft, images []string) (*publisher.Result, error)
	}
	// Archiver persists terminal run records.
	Archiver interface {
		Append(record any) error
	}
)

// RunResult is the outcome of one pipeline execution.
type RunResult struct {
	Run    *Run
	Draft  generator.Draft
	Images []string
}

// Orchestrator sequences the stages of a single run. It holds no
// cross-run state; each Run call is independent and relies on the
// scheduler for exclusivity.
type Orchestrator struct {
	retriever  Retriever
	compressor Compressor
	composer   Composer
	selector   MediaSelector
	submitter  Submitter
	archive    Archiver

	retry  config.RetryPolicy
	media  config.MediaConfig
	budget int
	log    *logger.Logger

	// sleep is a test seam for backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(
	retriever Retriever,
	compressor Compressor,
	composer Composer,
	selector MediaSelector,
	submitter Submitter,
	archive Archiver,
	retry config.RetryPolicy,
	mediaCfg config.MediaConfig,
	log *logger.Logger,
) (*Orchestrator, error) {
	if retriever == nil || compressor == nil || composer == nil || selector == nil || submitter == nil {
		return nil, errors.New("all pipeline collaborators are required")
	}
	if log == nil {
		log = logger.New("info")
	}
	return &Orchestrator{
		retriever:  retriever,
		compressor: compressor,
		composer:   composer,
		selector:   selector,
		submitter:  submitter,
		archive:    archive,
		retry:      retry,
		media:      mediaCfg,
		budget:     generator.DefaultBudget,
		log:        log,
		sleep:      sleepCtx,
	}, nil
}

// Run executes one retrieval-to-publish pipeline for the mode and
// domain, returning the archived run record alongside the produced
// draft. The returned error carries the terminal failure, if any.
func (o *Orchestrator) Run(ctx context.Context, mode, domain string) (*RunResult, error) {
	run := NewRun(mode, domain)
	res := &RunResult{Run: run}
	log := o.log.With("run_id", run.ID, "mode", mode, "domain", domain)
	log.Info("run started")

	err := o.execute(ctx, run, res, log)
	if err == nil {
		run.finish(StatusSucceeded)
		log.Info("run succeeded", "elapsed", run.Elapsed().String())
	} else {
		status := StatusFailed
		if errors.Is(err, context.Canceled) {
			status = StatusAborted
		}
		run.FailStage = run.CurrentStage
		run.FailCause = Cause(err)
		if Classify(err) == FatalSession {
			run.AuthExpired = true
		}
		run.finish(status)
		log.Error("run failed", "stage", run.FailStage, "cause", run.FailCause, "error", err)
	}

	if o.archive != nil {
		if aerr := o.archive.Append(run); aerr != nil {
			log.Error("failed to archive run", "error", aerr)
		}
	}
	return res, err
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, res *RunResult, log *logger.Logger) error {
	// Stage 1: retrieval.
	var topic search.Document
	var material string
	err := o.runStage(ctx, run, StageRetrieval, log, func() error {
		results, err := o.retriever.Search(ctx, retrievalQuery(run.Domain, run.Mode), 10)
		if err != nil {
			return err
		}
		if results == nil || len(results.Documents) == 0 {
			return ErrNoTopics
		}
		topic = results.Documents[0]
		material = joinMaterial(results.Documents)
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("topic selected", "title", topic.Title)

	// Stage 2: overflow summarization (no-op under budget).
	err = o.runStage(ctx, run, StageSummarize, log, func() error {
		compressed, err := o.compressor.MaybeCompress(ctx, material, o.budget)
		if err != nil {
			return err
		}
		material = compressed
		return nil
	})
	if err != nil {
		return err
	}

	// Stage 3: composition.
	err = o.runStage(ctx, run, StageCompose, log, func() error {
		draft, err := o.composer.Draft(ctx, generator.DraftContext{
			Topic:    topic.Title,
			Domain:   run.Domain,
			Material: material,
		}, run.Mode)
		if err != nil {
			return err
		}
		res.Draft = draft
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("draft composed", "title", res.Draft.Title, "tags", len(res.Draft.Tags))

	// Stage 4: media selection.
	err = o.runStage(ctx, run, StageMediaSelect, log, func() error {
		selected, err := o.selector.Select(ctx, topic.Title, o.media.MinCount, o.media.MaxCount)
		if err != nil {
			return err
		}
		urls := make([]string, len(selected))
		for i, c := range selected {
			urls[i] = c.URL
		}
		res.Images = urls
		return nil
	})
	if err != nil {
		return err
	}

	// Stage 5: publish.
	return o.runStage(ctx, run, StagePublish, log, func() error {
		result, err := o.submitter.Publish(ctx, res.Draft, res.Images)
		if err != nil {
			return err
		}
		if result.Shrunk {
			run.AddEvent(StagePublish, "shrunk", "payload reduced and resubmitted")
		}
		return nil
	})
}

// runStage executes one stage under the retry policy: transient
// failures back off and retry up to the bound, fatal failures abort
// immediately, exhaustion turns fatal.
func (o *Orchestrator) runStage(ctx context.Context, run *Run, stage Stage, log *logger.Logger, fn func() error) error {
	run.CurrentStage = stage
	run.AddEvent(stage, "started", "")

	var lastErr error
	for attempt := 1; attempt <= o.retry.MaxAttempts; attempt++ {
		run.Attempts[stage] = attempt

		err := fn()
		if err == nil {
			run.AddEvent(stage, "succeeded", "")
			return nil
		}
		lastErr = err

		class := Classify(err)
		run.AddEvent(stage, class.String(), err.Error())
		if class != Transient {
			return err
		}

		if attempt < o.retry.MaxAttempts {
			delay := o.retry.GetRetryDelay(attempt + 1)
			log.Warn("stage failed, retrying", "stage", stage, "attempt", attempt, "delay", delay.String(), "error", err)
			if err := o.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("stage %s: %w after %d attempts: %w", stage, ErrRetriesExhausted, o.retry.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retrievalQuery shapes the search query per mode, biasing paper mode
// towards arXiv material.
func retrievalQuery(domain, mode string) string {
	switch mode {
	case config.ModePaperAnalysis:
		return fmt.Sprintf("arXiv %s 最新论文", domain)
	case config.ModeZhihu:
		return fmt.Sprintf("%s 深度分析 观点", domain)
	default:
		return fmt.Sprintf("%s 今日热点", domain)
	}
}

// joinMaterial concatenates ranked document content in order for the
// composition context.
func joinMaterial(docs []search.Document) string {
	var sb strings.Builder
	for i, d := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(d.Title)
		sb.WriteString("\n")
		if d.Content != "" {
			sb.WriteString(d.Content)
		} else {
			sb.WriteString(d.Summary)
		}
	}
	return sb.String()
}
