// Package pipeline runs one newsletter edition through analysis, planning,
// generation, the transform chain, the relevance filters, validation and
// publishing.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abdulachik/recast/internal/analyzer"
	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/credstore"
	"github.com/abdulachik/recast/internal/db"
	"github.com/abdulachik/recast/internal/envelope"
	"github.com/abdulachik/recast/internal/generator"
	"github.com/abdulachik/recast/internal/metrics"
	"github.com/abdulachik/recast/internal/notify"
	"github.com/abdulachik/recast/internal/publisher"
	"github.com/abdulachik/recast/internal/relevance"
	"github.com/abdulachik/recast/internal/source"
	"github.com/abdulachik/recast/internal/strategy"
	"github.com/abdulachik/recast/internal/transform"
	"github.com/abdulachik/recast/internal/validator"
)

const (
	// DefaultConcurrency is the number of units processed at once.
	DefaultConcurrency = 4

	// DefaultPublishTimeout bounds publishing one unit, settle waits and
	// rate limit backoff included.
	DefaultPublishTimeout = 15 * time.Minute
)

// RunStore is the persistence a run writes to.
type RunStore interface {
	GetAccount(ctx context.Context, id string) (db.Account, error)
	CreateRun(ctx context.Context, arg db.CreateRunParams) error
	UpdateRunStatus(ctx context.Context, id, status, message string) error
	InsertUnit(ctx context.Context, arg db.InsertUnitParams) (int64, error)
	UpdateUnitStatus(ctx context.Context, id int64, status, errMsg string) error
	InsertPublishedPost(ctx context.Context, arg db.InsertPublishedPostParams) error
}

// Credentials loads an account's credential record.
type Credentials interface {
	Get(ctx context.Context, accountID string) (credstore.Record, error)
}

// Archiver records published posts as future style samples.
type Archiver interface {
	Add(ctx context.Context, accountID string, platform content.Platform, text string) error
}

// Request is one run of the pipeline over one edition.
type Request struct {
	// RunID names an existing queued run. Empty creates a new run.
	RunID        string
	AccountID    string
	EditionURL   string
	ContentTypes []content.Type
	Publish      bool
}

// RequestFromRun rebuilds the request of a stored run.
func RequestFromRun(run db.Run) (Request, error) {
	types, err := content.ParseTypes(strings.Split(run.ContentTypes, ","))
	if err != nil {
		return Request{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return Request{
		RunID:        run.ID,
		AccountID:    run.AccountID,
		EditionURL:   run.EditionURL,
		ContentTypes: types,
		Publish:      run.Publish,
	}, nil
}

func (r Request) validate() error {
	switch {
	case r.AccountID == "":
		return fmt.Errorf("%w: account id is required", content.ErrConfiguration)
	case r.EditionURL == "":
		return fmt.Errorf("%w: edition url is required", content.ErrConfiguration)
	case len(r.ContentTypes) == 0:
		return fmt.Errorf("%w: at least one content type is required", content.ErrConfiguration)
	}
	for _, t := range r.ContentTypes {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown content type %q", content.ErrConfiguration, t)
		}
	}
	return nil
}

func (r Request) platforms() []content.Platform {
	var out []content.Platform
	seen := make(map[content.Platform]bool)
	for _, t := range r.ContentTypes {
		if p := t.Platform(); !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func joinTypes(types []content.Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}

// UnitResult is the outcome of one section and content type.
type UnitResult struct {
	PostNumber int
	Type       content.Type
	Unit       content.Unit
	Violations []validator.Violation
	Publish    *publisher.Result
	Err        error
}

func (u UnitResult) describe() string {
	where := fmt.Sprintf("post %d (%s)", u.PostNumber, u.Type)
	if u.Publish != nil && u.Publish.FailedIndex >= 0 {
		where += fmt.Sprintf(" item %d", u.Publish.FailedIndex)
	}
	return where + ": " + u.Err.Error()
}

// Result is the outcome of a run.
type Result struct {
	RunID   string
	Status  string
	Success bool
	Message string
	Units   []UnitResult
	Err     error
}

// OK reports success and the run message.
func (r *Result) OK() (bool, string) {
	return r.Success, r.Message
}

// PostURLs lists the URLs of every published post in unit order.
func (r *Result) PostURLs() []string {
	var urls []string
	for _, u := range r.Units {
		if u.Publish == nil {
			continue
		}
		for _, it := range u.Publish.Items {
			if it.URL != "" {
				urls = append(urls, it.URL)
			}
		}
	}
	return urls
}

// Config wires the collaborators of a Runner.
type Config struct {
	Store      RunStore
	Source     source.Provider
	Analyzer   *analyzer.Analyzer
	Strategist *strategy.Strategist
	Generator  *generator.Generator

	Stages       []transform.Stage
	StageTimeout time.Duration

	// Nil filters are disabled.
	ImageFilter *relevance.ImageFilter
	LinkFilter  *relevance.LinkFilter

	Credentials    Credentials
	Platforms      PlatformFactory
	Renderer       publisher.SlideRenderer
	Media          publisher.MediaSource
	SettleDelay    time.Duration
	PublishTimeout time.Duration

	Archive     Archiver
	Notifier    notify.Notifier
	Concurrency int
	Metrics     *metrics.Metrics
}

// Runner executes pipeline runs.
type Runner struct {
	cfg Config
}

// New creates a Runner.
func New(cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	return &Runner{cfg: cfg}
}

type job struct {
	planned strategy.Planned
	ctype   content.Type
}

type runState struct {
	runID   string
	publish bool
	profile content.Profile
	article *source.Article
	clients map[content.Platform]publisher.Platform
	chain   *transform.Chain
	status  *statusTracker
}

// Run processes req. It never panics and always returns a Result; a
// failed run carries the error that stopped it.
func (r *Runner) Run(ctx context.Context, req Request) *Result {
	res := &Result{RunID: req.RunID}
	start := time.Now()

	if err := req.validate(); err != nil {
		return r.fail(ctx, res, nil, req, err)
	}

	account, err := r.cfg.Store.GetAccount(ctx, req.AccountID)
	if errors.Is(err, sql.ErrNoRows) {
		return r.fail(ctx, res, nil, req, fmt.Errorf("%w: unknown account %s", content.ErrConfiguration, req.AccountID))
	}
	if err != nil {
		return r.fail(ctx, res, nil, req, fmt.Errorf("load account: %w", err))
	}

	if res.RunID == "" {
		res.RunID = uuid.NewString()
		err := r.cfg.Store.CreateRun(ctx, db.CreateRunParams{
			ID:           res.RunID,
			AccountID:    req.AccountID,
			EditionURL:   req.EditionURL,
			ContentTypes: joinTypes(req.ContentTypes),
			Publish:      req.Publish,
		})
		if err != nil {
			return r.fail(ctx, res, nil, req, fmt.Errorf("create run: %w", err))
		}
	}

	st := &runState{
		runID:   res.RunID,
		publish: req.Publish,
		profile: profileOf(account),
		status:  newStatusTracker(r.cfg.Store, res.RunID),
	}

	// Credentials are read once and checked before any generative call.
	if req.Publish {
		clients, err := r.platformClients(ctx, req)
		if err != nil {
			return r.fail(ctx, res, st.status, req, err)
		}
		st.clients = clients
	}

	log := slog.With("run_id", res.RunID, "account", req.AccountID)
	log.Info("starting run", "edition", req.EditionURL, "types", joinTypes(req.ContentTypes), "publish", req.Publish)

	st.status.advance(ctx, db.RunAnalyzing)
	stageStart := time.Now()
	article, err := r.cfg.Source.Fetch(ctx, req.EditionURL)
	r.cfg.Metrics.ObserveStage("source", outcome(err), time.Since(stageStart))
	if err != nil {
		return r.fail(ctx, res, st.status, req, fmt.Errorf("fetch edition: %w", err))
	}
	st.article = article

	st.status.advance(ctx, db.RunAnalyzingStructure)
	stageStart = time.Now()
	sections, err := r.cfg.Analyzer.Analyze(ctx, article.ContentText)
	r.cfg.Metrics.ObserveStage("analyzer", outcome(err), time.Since(stageStart))
	if err != nil {
		return r.fail(ctx, res, st.status, req, fmt.Errorf("analyze edition: %w", err))
	}
	if analyzer.IsDegraded(sections) {
		log.Warn("structure analysis degraded to a single section")
	}

	st.status.advance(ctx, db.RunDeterminingStrategy)
	plan, err := r.cfg.Strategist.Plan(ctx, sections)
	if err != nil {
		return r.fail(ctx, res, st.status, req, fmt.Errorf("plan posts: %w", err))
	}

	st.status.advance(ctx, db.RunGenerating)
	st.chain = transform.NewChain(transform.ChainConfig{
		Stages:  r.cfg.Stages,
		Timeout: r.cfg.StageTimeout,
		Metrics: r.cfg.Metrics,
	})
	st.chain.OnStage = func(stage string) {
		if s, ok := stageStatus[stage]; ok {
			st.status.advance(ctx, s)
		}
	}

	var jobs []job
	for _, p := range plan {
		for _, t := range req.ContentTypes {
			jobs = append(jobs, job{planned: p, ctype: t})
		}
	}

	res.Units = make([]UnitResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			res.Units[i] = r.unit(gctx, st, j)
			return nil
		})
	}
	_ = g.Wait()

	var failures []string
	for _, u := range res.Units {
		if u.Err != nil {
			failures = append(failures, u.describe())
		}
	}
	if len(failures) > 0 {
		err := fmt.Errorf("%d of %d units failed: %s", len(failures), len(jobs), strings.Join(failures, "; "))
		return r.fail(ctx, res, st.status, req, err)
	}

	res.Success = true
	res.Status = db.RunGenerated
	res.Message = fmt.Sprintf("%d units generated", len(jobs))
	if req.Publish {
		res.Status = db.RunPublished
		res.Message = fmt.Sprintf("%d units published", len(jobs))
	}
	st.status.finish(ctx, res.Status, res.Message)
	r.cfg.Metrics.ObserveRun(res.Status)
	r.notify(ctx, res, req)

	log.Info("run finished", "status", res.Status, "units", len(jobs), "duration", time.Since(start).Round(time.Millisecond))
	return res
}

func (r *Runner) platformClients(ctx context.Context, req Request) (map[content.Platform]publisher.Platform, error) {
	if r.cfg.Credentials == nil || r.cfg.Platforms == nil {
		return nil, fmt.Errorf("%w: publishing is not configured", content.ErrConfiguration)
	}
	for _, t := range req.ContentTypes {
		if t.IsCarousel() && r.cfg.Renderer == nil {
			return nil, fmt.Errorf("%w: %s needs a slide renderer", content.ErrConfiguration, t)
		}
	}

	rec, err := r.cfg.Credentials.Get(ctx, req.AccountID)
	if errors.Is(err, credstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", content.ErrConfiguration, err)
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	platforms := req.platforms()
	if err := rec.Require(platforms...); err != nil {
		return nil, err
	}

	clients := make(map[content.Platform]publisher.Platform, len(platforms))
	for _, p := range platforms {
		c, err := r.cfg.Platforms.Platform(ctx, req.AccountID, rec, p)
		if err != nil {
			return nil, fmt.Errorf("build %s client: %w", p, err)
		}
		clients[p] = c
	}
	return clients, nil
}

// unit runs one section and content type end to end.
func (r *Runner) unit(ctx context.Context, st *runState, j job) UnitResult {
	ur := UnitResult{PostNumber: j.planned.PostNumber, Type: j.ctype}
	log := slog.With("run_id", st.runID, "post_number", ur.PostNumber, "type", ur.Type)

	in := generator.Input{
		Section:      j.planned.Section,
		Profile:      st.profile,
		Type:         j.ctype,
		PostNumber:   j.planned.PostNumber,
		WebURL:       st.article.CanonicalURL,
		ThumbnailURL: st.article.ThumbnailURL,
	}
	start := time.Now()
	u, err := r.cfg.Generator.Generate(ctx, in)
	r.cfg.Metrics.ObserveStage("generator", outcome(err), time.Since(start))
	if err != nil {
		ur.Err = fmt.Errorf("generate: %w", err)
		r.persistFailure(ctx, st, ur)
		return ur
	}

	u = st.chain.Run(ctx, u, transform.Input{
		Profile:    st.profile,
		Newsletter: st.article.ContentText,
		Section:    j.planned.Section,
	})

	if r.cfg.ImageFilter != nil {
		u = r.cfg.ImageFilter.Apply(ctx, u, generator.Candidates(in))
	}
	if r.cfg.LinkFilter != nil && len(st.article.Links) > 0 {
		u = r.cfg.LinkFilter.Apply(ctx, u, st.article.Links)
	}

	u, report := validator.Validate(u)
	for _, v := range report.Violations {
		r.cfg.Metrics.ObserveViolation(string(u.Type), v.Field)
		log.Debug("repaired budget violation", "item", v.ItemIndex, "field", v.Field, "length", v.Length, "limit", v.Limit)
	}
	ur.Unit = u
	ur.Violations = report.Violations
	r.cfg.Metrics.ObserveUnit(string(u.Type))

	unitID := r.persistUnit(ctx, st, u)
	if !st.publish {
		return ur
	}

	st.status.advance(ctx, db.RunPublishing)
	pub := publisher.New(publisher.Config{
		Platform:    st.clients[u.Type.Platform()],
		Renderer:    r.cfg.Renderer,
		Media:       r.cfg.Media,
		SettleDelay: r.cfg.SettleDelay,
		Metrics:     r.cfg.Metrics,
	})
	pctx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	result := pub.Publish(pctx, u)
	cancel()
	ur.Publish = result

	r.recordPublished(ctx, st, unitID, u, result)
	if !result.OK() {
		ur.Err = fmt.Errorf("publish: %w", result.Err)
		r.updateUnit(ctx, unitID, db.UnitFailed, ur.Err.Error())
		log.Warn("publish failed", "item", result.FailedIndex, "error", result.Err)
		return ur
	}
	r.updateUnit(ctx, unitID, db.UnitPublished, "")
	return ur
}

func (r *Runner) persistUnit(ctx context.Context, st *runState, u content.Unit) int64 {
	encoded, err := envelope.Encode(u)
	if err != nil {
		slog.Warn("failed to encode unit", "run_id", st.runID, "error", err)
		return 0
	}
	id, err := r.cfg.Store.InsertUnit(context.WithoutCancel(ctx), db.InsertUnitParams{
		RunID:       st.runID,
		PostNumber:  int64(u.PostNumber),
		ContentType: string(u.Type),
		Envelope:    encoded,
		Status:      db.UnitGenerated,
	})
	if err != nil {
		slog.Warn("failed to persist unit", "run_id", st.runID, "error", err)
		return 0
	}
	return id
}

func (r *Runner) persistFailure(ctx context.Context, st *runState, ur UnitResult) {
	_, err := r.cfg.Store.InsertUnit(context.WithoutCancel(ctx), db.InsertUnitParams{
		RunID:       st.runID,
		PostNumber:  int64(ur.PostNumber),
		ContentType: string(ur.Type),
		Status:      db.UnitFailed,
		Error:       ur.Err.Error(),
	})
	if err != nil {
		slog.Warn("failed to persist unit failure", "run_id", st.runID, "error", err)
	}
}

func (r *Runner) updateUnit(ctx context.Context, id int64, status, msg string) {
	if id == 0 {
		return
	}
	if err := r.cfg.Store.UpdateUnitStatus(context.WithoutCancel(ctx), id, status, msg); err != nil {
		slog.Warn("failed to update unit", "unit_id", id, "error", err)
	}
}

// recordPublished stores every created post and archives its text.
func (r *Runner) recordPublished(ctx context.Context, st *runState, unitID int64, u content.Unit, result *publisher.Result) {
	ctx = context.WithoutCancel(ctx)
	platform := u.Type.Platform()
	for _, it := range result.Items {
		if it.PostID == "" {
			continue
		}
		text := publisher.Caption(u)
		if !u.Type.IsCarousel() && it.ItemIndex < len(u.Items) {
			text = u.Items[it.ItemIndex].PostText()
		}
		if unitID != 0 {
			err := r.cfg.Store.InsertPublishedPost(ctx, db.InsertPublishedPostParams{
				UnitID:    unitID,
				AccountID: st.profile.AccountID,
				Platform:  string(platform),
				ItemIndex: int64(it.ItemIndex),
				PostType:  string(it.PostType),
				PostID:    it.PostID,
				ParentID:  it.ParentID,
				QuoteID:   it.QuoteID,
				URL:       it.URL,
				Text:      text,
			})
			if err != nil {
				slog.Warn("failed to record published post", "post_id", it.PostID, "error", err)
			}
		}
		if r.cfg.Archive != nil {
			if err := r.cfg.Archive.Add(ctx, st.profile.AccountID, platform, text); err != nil {
				slog.Warn("failed to archive post", "post_id", it.PostID, "error", err)
			}
		}
	}
}

func (r *Runner) fail(ctx context.Context, res *Result, status *statusTracker, req Request, err error) *Result {
	res.Success = false
	res.Status = db.RunFailed
	res.Message = err.Error()
	res.Err = err
	if status != nil {
		status.finish(ctx, db.RunFailed, res.Message)
	}
	r.cfg.Metrics.ObserveRun(db.RunFailed)
	r.notify(ctx, res, req)
	slog.Error("run failed", "run_id", res.RunID, "account", req.AccountID, "error", err)
	return res
}

func (r *Runner) notify(ctx context.Context, res *Result, req Request) {
	if r.cfg.Notifier == nil {
		return
	}
	subject := "Run " + res.Status
	if res.RunID != "" {
		subject += " (" + res.RunID + ")"
	}
	err := r.cfg.Notifier.Send(context.WithoutCancel(ctx), notify.Notification{
		Subject:   subject,
		Body:      res.Message,
		RunID:     res.RunID,
		AccountID: req.AccountID,
		Status:    res.Status,
		Success:   res.Success,
		PostURLs:  res.PostURLs(),
	})
	if err != nil {
		slog.Warn("failed to send notification", "run_id", res.RunID, "error", err)
	}
}

func profileOf(a db.Account) content.Profile {
	return content.Profile{
		AccountID:       a.ID,
		DisplayName:     a.DisplayName,
		SubscribeURL:    a.SubscribeURL,
		CustomPrompt:    a.CustomPrompt,
		ExampleTwitter:  a.ExampleTwitter,
		ExampleLinkedIn: a.ExampleLinkedIn,
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return metrics.OutcomeOK
}
