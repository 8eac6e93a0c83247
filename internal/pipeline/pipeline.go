// Package pipeline turns a bird photo into a verified collection entry. It encodes the
// photo, asks the vision model for a species while fetching the regional registry,
// verifies the answer against the registry and only then persists anything.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/imaging"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/observability/metrics"
	"github.com/birdlens/birdlens/internal/species"
)

// DefaultObserverTimeout bounds each post-save observer call.
const DefaultObserverTimeout = 15 * time.Second

// Encoder normalizes raw image bytes into the payload sent to the vision model.
type Encoder interface {
	EncodeBytes(data []byte) (*imaging.Payload, error)
}

// Identifier names the bird in a base64 JPEG.
type Identifier interface {
	Identify(ctx context.Context, base64Image string) (species.Record, error)
}

// Registry returns the species known to occur in a region.
type Registry interface {
	FetchRegistry(ctx context.Context, regionCode string) ([]species.RegistryEntry, error)
}

// Persister writes verified identifications.
type Persister interface {
	UploadImage(ctx context.Context, v species.Verified, ownerID string, image []byte, format string) (string, error)
	SaveEntry(ctx context.Context, v species.Verified, ownerID, imageURL string) (collection.Entry, error)
}

// Observer is told about every saved entry. Failures are logged and never change the outcome.
type Observer interface {
	Name() string
	EntrySaved(ctx context.Context, entry *collection.Entry) error
}

// Request is one identification attempt.
type Request struct {
	Image      []byte
	OwnerID    string
	RegionCode string // eBird region, e.g. "US-NY"; empty uses the configured default
}

// Outcome is the result of a run that reached a terminal state.
type Outcome struct {
	RunID    string            `json:"runId"`
	State    State             `json:"state"`
	Verified bool              `json:"verified"`
	Species  species.Record    `json:"species"`
	ImageURL string            `json:"imageUrl,omitempty"` // empty when the upload failed
	Entry    *collection.Entry `json:"entry,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// Pipeline runs identifications. It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	encoder         Encoder
	identifier      Identifier
	registry        Registry
	persister       Persister
	observers       []Observer
	metrics         *metrics.PipelineMetrics
	log             logger.Logger
	defaultRegion   string
	observerTimeout time.Duration
	newRunID        func() string

	wg sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObservers registers post-save observers.
func WithObservers(observers ...Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, observers...) }
}

// WithMetrics records run and stage metrics in m.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithDefaultRegion sets the region used when a request has none.
func WithDefaultRegion(region string) Option {
	return func(p *Pipeline) { p.defaultRegion = region }
}

// WithObserverTimeout overrides DefaultObserverTimeout.
func WithObserverTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.observerTimeout = d }
}

// New wires the pipeline stages.
func New(encoder Encoder, identifier Identifier, registry Registry, persister Persister, opts ...Option) *Pipeline {
	p := &Pipeline{
		encoder:         encoder,
		identifier:      identifier,
		registry:        registry,
		persister:       persister,
		log:             logger.Global().Module("pipeline"),
		observerTimeout: DefaultObserverTimeout,
		newRunID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait blocks until every observer notification started by Run has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// run is the state of a single Run call.
type run struct {
	id      string
	state   State
	log     logger.Logger
	started time.Time
}

func (r *run) enter(s State) {
	r.log.Trace("state transition",
		logger.String("from", r.state.String()),
		logger.String("to", s.String()))
	r.state = s
}

// Run processes req to a terminal state. A rejected candidate is a successful run with
// Verified false. On failure the returned Outcome is in StateFailed and the error is a
// *Error; a failed or abandoned run has persisted nothing. When the record save fails the
// persister removes the photo it uploaded for it.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	r := &run{id: p.newRunID(), state: StateIdle, started: time.Now()}
	ctx = logger.WithTraceID(ctx, r.id)
	r.log = p.log.WithContext(ctx)

	region := strings.TrimSpace(req.RegionCode)
	if region == "" {
		region = p.defaultRegion
	}
	r.log.Info("identification started",
		logger.String("region", region),
		logger.Int("image_bytes", len(req.Image)))

	if err := ctx.Err(); err != nil {
		return p.fail(r, newError(KindCancelled, err))
	}

	// Encoding
	r.enter(StateEncoding)
	stageStart := time.Now()
	payload, err := p.encoder.EncodeBytes(req.Image)
	p.observeStage(metrics.StageEncode, stageStart, err)
	if err != nil {
		return p.fail(r, newError(classify(ctx, err, KindEncoding), err))
	}
	if p.metrics != nil {
		p.metrics.ObservePayloadSize(payload.Size())
	}

	// Identifying || AwaitingRegistry
	var (
		candidate species.Record
		registry  []species.RegistryEntry
		idErr     error
		regErr    error
	)
	r.enter(StateIdentifying)
	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		candidate, idErr = p.identifier.Identify(ctx, payload.Base64)
		p.observeStage(metrics.StageIdentify, start, idErr)
		return idErr
	})
	g.Go(func() error {
		start := time.Now()
		registry, regErr = p.registry.FetchRegistry(ctx, region)
		p.observeStage(metrics.StageRegistry, start, regErr)
		return regErr
	})
	r.enter(StateAwaitingRegistry)
	_ = g.Wait()

	if idErr != nil {
		return p.fail(r, newError(classify(ctx, idErr, KindIdentification), idErr))
	}
	if regErr != nil {
		return p.fail(r, newError(classify(ctx, regErr, KindRegistryFetch), regErr))
	}
	if p.metrics != nil {
		p.metrics.ObserveRegistrySize(len(registry))
	}

	// Verifying
	r.enter(StateVerifying)
	stageStart = time.Now()
	verified, ok := species.Verify(candidate, registry)
	p.observeStage(metrics.StageVerify, stageStart, nil)
	if !ok {
		r.enter(StateRejected)
		r.log.Info("identification rejected",
			logger.String("common_name", candidate.CommonName),
			logger.String("scientific_name", candidate.ScientificName),
			logger.Int("registry_size", len(registry)))
		p.recordRun(r, metrics.ResultRejected)
		return &Outcome{
			RunID:   r.id,
			State:   StateRejected,
			Species: candidate,
			Message: RejectedMessage,
		}, nil
	}
	r.enter(StateVerified)

	if err := ctx.Err(); err != nil {
		return p.fail(r, newError(KindCancelled, err))
	}

	// PersistingImage: the photo is kept as submitted; failure degrades to an entry without one
	r.enter(StatePersistingImage)
	outcome := &Outcome{RunID: r.id, Verified: true, Species: candidate}
	stageStart = time.Now()
	imageURL, err := p.persister.UploadImage(ctx, verified, req.OwnerID, req.Image, payload.Format)
	p.observeStage(metrics.StageUpload, stageStart, err)
	if err != nil {
		r.log.Warn("image upload failed, saving entry without image",
			logger.Error(err),
			logger.String("kind", classify(ctx, err, KindUpload).String()))
		if p.metrics != nil {
			p.metrics.RecordUploadDegraded()
		}
		imageURL = ""
		outcome.Message = UserMessage(KindUpload)
	}

	// PersistingRecord
	r.enter(StatePersistingRecord)
	stageStart = time.Now()
	entry, err := p.persister.SaveEntry(ctx, verified, req.OwnerID, imageURL)
	p.observeStage(metrics.StagePersist, stageStart, err)
	if err != nil {
		return p.fail(r, newError(classify(ctx, err, KindPersist), err))
	}

	r.enter(StateDone)
	outcome.State = StateDone
	outcome.ImageURL = imageURL
	outcome.Entry = &entry

	r.log.Info("identification saved",
		logger.String("slot_id", entry.SlotID),
		logger.String("common_name", entry.CommonName),
		logger.Bool("has_image", imageURL != ""),
		logger.Duration("elapsed", time.Since(r.started)))
	p.recordRun(r, metrics.ResultVerified)
	p.notify(ctx, r, entry)

	return outcome, nil
}

func (p *Pipeline) fail(r *run, perr *Error) (*Outcome, error) {
	from := r.state
	r.enter(StateFailed)

	result := metrics.ResultFailed
	if perr.Kind == KindCancelled {
		result = metrics.ResultCancelled
		r.log.Info("identification cancelled", logger.String("stage", from.String()))
	} else {
		r.log.Warn("identification failed",
			logger.String("stage", from.String()),
			logger.String("kind", perr.Kind.String()),
			logger.Error(perr.Err))
	}
	p.recordRun(r, result)

	return &Outcome{RunID: r.id, State: StateFailed, Message: perr.Message}, perr
}

// notify fans entry out to observers in the background, detached from the caller's
// cancellation.
func (p *Pipeline) notify(ctx context.Context, r *run, entry collection.Entry) {
	if len(p.observers) == 0 {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, o := range p.observers {
		e := entry
		p.wg.Go(func() {
			octx, cancel := context.WithTimeout(base, p.observerTimeout)
			defer cancel()
			if err := o.EntrySaved(octx, &e); err != nil {
				r.log.Warn("entry observer failed",
					logger.String("observer", o.Name()),
					logger.Error(err))
			}
		})
	}
}

func (p *Pipeline) observeStage(stage string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		p.metrics.RecordError(stage, classify(context.Background(), err, 0).String())
	}
	p.metrics.RecordOperation(stage, status)
	p.metrics.RecordDuration(stage, time.Since(start).Seconds())
}

func (p *Pipeline) recordRun(r *run, result string) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordRun(result)
	p.metrics.RecordDuration(metrics.StageRun, time.Since(r.started).Seconds())
}
