// Package pipeline runs sanitize, classify and route for batches of
// inbound emails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailtriage/internal/model"
	"mailtriage/internal/sanitizer"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/util"
)

// ObjectStore holds raw emails and normalized records.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

type Normalizer interface {
	Normalize(raw []byte) (model.NormalizedEmail, error)
}

type Classifier interface {
	Classify(ctx context.Context, email model.NormalizedEmail) (model.Result, error)
}

type Router interface {
	Decide(ctx context.Context, email model.NormalizedEmail, result model.Result) (model.Decision, error)
}

// Outbound delivers routing decisions to downstream consumers.
type Outbound interface {
	Notify(ctx context.Context, d model.Notify) error
	ConfirmForward(ctx context.Context, d model.ConfirmForward) error
}

type Options struct {
	// 规范化记录写入的 bucket
	OutputBucket string
	// 同一批次内并行处理的邮件数
	Concurrency int
	// 单封邮件的处理超时，0 表示不限制
	UnitTimeout time.Duration
}

type Orchestrator struct {
	store      ObjectStore
	normalizer Normalizer
	classifier Classifier
	router     Router
	outbound   Outbound
	opts       Options
	logger     *zap.Logger
}

func NewOrchestrator(
	store ObjectStore,
	normalizer Normalizer,
	classifier Classifier,
	router Router,
	outbound Outbound,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		store:      store,
		normalizer: normalizer,
		classifier: classifier,
		router:     router,
		outbound:   outbound,
		opts:       opts,
		logger:     logger,
	}
}

// ProcessBatch processes every unit independently. Terminal per-unit
// failures are logged and skipped. Retryable failures are joined and
// returned so the transport redelivers the batch. Once ctx is canceled every
// failed unit counts as retryable.
func (o *Orchestrator) ProcessBatch(ctx context.Context, units []model.InboundUnit) error {
	log := logger.WithTrace(ctx, o.logger)
	errs := make([]error, len(units))

	// 单元之间互不影响：失败不取消兄弟任务
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, unit := range units {
		i, unit := i, unit
		g.Go(func() error {
			errs[i] = o.ProcessUnit(ctx, unit)
			return nil
		})
	}
	_ = g.Wait()

	// 批次被取消（进程关停）时，失败单元一律交给传输层重投
	interrupted := ctx.Err() != nil

	var retry []error
	for i, err := range errs {
		if err == nil {
			continue
		}
		unitLog := log.With(zap.String("bucket", units[i].Bucket), zap.String("key", units[i].Key))

		retryable, kind := util.IsRetryableError(err)
		if !retryable && !interrupted {
			metrics.IncrementPipelineOutcome("skipped")
			unitLog.Warn("Email skipped", zap.String("error_type", kind), zap.Error(err))
			continue
		}

		metrics.IncrementPipelineOutcome("failed")
		unitLog.Error("Email processing failed", zap.String("error_type", kind), zap.Error(err))
		retry = append(retry, fmt.Errorf("%s/%s: %w", units[i].Bucket, units[i].Key, err))
	}

	if interrupted && len(retry) > 0 {
		return fmt.Errorf("batch interrupted after %d failed units: %w", len(retry), ctx.Err())
	}
	return errors.Join(retry...)
}

// ProcessUnit runs one email through normalize, persist, classify, route and
// dispatch.
func (o *Orchestrator) ProcessUnit(ctx context.Context, unit model.InboundUnit) error {
	if o.opts.UnitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.UnitTimeout)
		defer cancel()
	}
	log := logger.WithTrace(ctx, o.logger).With(zap.String("key", unit.Key))

	raw, err := o.store.Get(ctx, unit.Bucket, unit.Key)
	if err != nil {
		return err
	}

	email, err := o.normalizer.Normalize(raw)
	if err != nil {
		return err
	}

	if err := o.persist(ctx, unit, email); err != nil {
		return err
	}

	result, err := o.classifier.Classify(ctx, email)
	if err != nil {
		return err
	}

	decision, err := o.router.Decide(ctx, email, result)
	if err != nil {
		return err
	}

	if err := o.dispatch(ctx, decision); err != nil {
		return err
	}

	metrics.IncrementPipelineOutcome(decision.Outcome())
	if d, ok := decision.(model.Drop); ok {
		log.Info("Email dropped", zap.String("to", email.To), zap.String("reason", d.Reason))
	} else {
		log.Info("Email routed", zap.String("to", email.To), zap.String("outcome", decision.Outcome()))
	}
	return nil
}

// persist 以 upsert 方式写入，重复投递结果一致
func (o *Orchestrator) persist(ctx context.Context, unit model.InboundUnit, email model.NormalizedEmail) error {
	body, err := json.Marshal(sanitizer.ToRecord(email))
	if err != nil {
		return err
	}
	bucket := o.opts.OutputBucket
	if bucket == "" {
		bucket = unit.Bucket
	}
	return o.store.Put(ctx, bucket, sanitizer.NormalizedKey(unit.Key), body, "application/json")
}

func (o *Orchestrator) dispatch(ctx context.Context, decision model.Decision) error {
	switch d := decision.(type) {
	case model.Notify:
		return o.outbound.Notify(ctx, d)
	case model.ConfirmForward:
		return o.outbound.ConfirmForward(ctx, d)
	case model.Drop:
		return nil
	default:
		return fmt.Errorf("unsupported routing decision %T", decision)
	}
}
