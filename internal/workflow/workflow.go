// Package workflow drives a contribution through its form steps and the
// ordered remote calls that turn it into a submitted entity.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"hostflow/internal/catalog"
	"hostflow/internal/domain"
	"hostflow/internal/feedback"
	"hostflow/internal/form"
	"hostflow/internal/media"
	"hostflow/internal/phone"
	"hostflow/internal/steps"
	hostflowsdk "hostflow/sdk/go"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateDraftPending  State = "draft_pending"
	StateDraftCreated  State = "draft_created"
	StateUploading     State = "uploading"
	StateFinalizing    State = "finalizing"
	StateSuccess       State = "success"
	StateFailed        State = "failed"
	StateReadOnly      State = "read_only"
)

var (
	ErrReadOnly    = errors.New("entity is approved and read-only; edits require a change request")
	ErrSubmitted   = errors.New("entity already submitted")
	ErrNoDraft     = errors.New("no draft entity yet; complete the first step")
	ErrLastStep    = errors.New("already on the last step; submit instead")
	ErrNotLastStep = errors.New("finish every step before submitting")
)

// Backend is the remote API the workflow drives.
type Backend interface {
	CreateDraft(ctx context.Context, kind string, fields map[string]any) (hostflowsdk.Entity, error)
	UpdateBasicInfo(ctx context.Context, id string, fields map[string]any) error
	UpdateLocation(ctx context.Context, id string, fields map[string]any) error
	UpdateVenuePricing(ctx context.Context, id string, fields map[string]any) error
	UpdateAmenities(ctx context.Context, id string, items []string) error
	UploadMedia(ctx context.Context, id string, files []hostflowsdk.File, onProgress hostflowsdk.ProgressFunc) ([]hostflowsdk.Media, error)
	Submit(ctx context.Context, id string) (hostflowsdk.Entity, error)
	GetEntity(ctx context.Context, id string) (hostflowsdk.Entity, error)
	MyEntities(ctx context.Context) ([]hostflowsdk.Entity, error)
}

// MediaLimits bound compressed uploads.
type MediaLimits struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

var DefaultMediaLimits = MediaLimits{MaxWidth: 1920, MaxHeight: 1080, Quality: 80}

type Option func(*Workflow)

func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) { w.log = l }
}

func WithMediaLimits(l MediaLimits) Option {
	return func(w *Workflow) { w.limits = l }
}

// WithPhoneDefault sets the country code assumed for numbers without one.
func WithPhoneDefault(code string) Option {
	return func(w *Workflow) { w.phoneCode = code }
}

// WithProgress registers a listener for upload progress. It may be called
// from the upload goroutine.
func WithProgress(fn func(percent int)) Option {
	return func(w *Workflow) { w.onProgress = fn }
}

// Workflow owns one contribution's form, step position and draft. It is not
// safe for concurrent use; remote calls are issued one at a time.
type Workflow struct {
	kind    domain.Kind
	plan    steps.Plan
	backend Backend
	session domain.Session

	store    *form.Store
	step     form.StepState
	draft    domain.EntityDraft
	state    State
	errMsg   string
	progress atomic.Int32
	previews *media.Previews

	limits     MediaLimits
	phoneCode  string
	onProgress func(int)
	log        *zap.Logger
}

// New starts a workflow for kind with defaults and session prefill applied.
func New(kind domain.Kind, backend Backend, session domain.Session, opts ...Option) (*Workflow, error) {
	plan, err := steps.For(kind)
	if err != nil {
		return nil, err
	}
	w := &Workflow{
		kind:      kind,
		plan:      plan,
		backend:   backend,
		session:   session,
		state:     StateUninitialized,
		step:      form.NewStepState(plan.Len()),
		previews:  media.NewPreviews(),
		limits:    DefaultMediaLimits,
		phoneCode: phone.DefaultCode,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(zap.String("kind", string(kind)))
	w.store = form.NewStore(w.initialRecord())
	return w, nil
}

func (w *Workflow) initialRecord() form.Record {
	rec := w.plan.Defaults()
	if w.kind != domain.KindJobApplication {
		return rec
	}
	p := w.session.Profile
	if p.Name != "" {
		rec["full_name"] = p.Name
	}
	if p.Email != "" {
		rec["email"] = p.Email
	}
	if p.Phone != "" {
		rec["phone"] = p.Phone
		parts := phone.SplitWithDefault(p.Phone, w.phoneCode)
		rec["phone_code"] = parts.Code
		rec["phone_number"] = parts.Number
	}
	return rec
}

func (w *Workflow) Kind() domain.Kind         { return w.kind }
func (w *Workflow) Plan() steps.Plan          { return w.plan }
func (w *Workflow) State() State              { return w.state }
func (w *Workflow) Step() form.StepState      { return w.step }
func (w *Workflow) Draft() domain.EntityDraft { return w.draft }
func (w *Workflow) Record() form.Record       { return w.store.Get() }

// Err returns the last error message for the inline banner, or "".
func (w *Workflow) Err() string { return w.errMsg }

// Progress returns the upload progress in 0..100.
func (w *Workflow) Progress() int { return int(w.progress.Load()) }

// CurrentStep returns the step the user is on.
func (w *Workflow) CurrentStep() steps.Step {
	st, _ := w.plan.Step(w.step.Index)
	return st
}

// StepValid reports whether the current step passes its rule.
func (w *Workflow) StepValid() bool {
	return w.plan.IsStepValid(w.step.Index, w.store.Get())
}

func (w *Workflow) mutable() error {
	switch w.state {
	case StateReadOnly:
		return ErrReadOnly
	case StateSuccess:
		return ErrSubmitted
	}
	return nil
}

// Set writes one field.
func (w *Workflow) Set(field string, value any) error {
	if err := w.mutable(); err != nil {
		return w.fail(err)
	}
	if field == steps.MediaField {
		return w.fail(fmt.Errorf("field %q is managed through AddMedia", field))
	}
	w.store.Set(field, value)
	if field == "phone" {
		if s, ok := value.(string); ok {
			parts := phone.SplitWithDefault(s, w.phoneCode)
			w.store.Set("phone_code", parts.Code)
			w.store.Set("phone_number", parts.Number)
		}
	}
	return nil
}

// Fill merges a typed contribution into the form.
func (w *Workflow) Fill(c domain.Contribution) error {
	if c.Kind() != w.kind {
		return w.fail(fmt.Errorf("contribution kind %s does not match workflow kind %s", c.Kind(), w.kind))
	}
	if err := w.mutable(); err != nil {
		return w.fail(err)
	}
	for field, value := range c.Record() {
		if err := w.Set(field, value); err != nil {
			return err
		}
	}
	return nil
}

// Assets returns the media assets in display order.
func (w *Workflow) Assets() []domain.MediaAsset {
	assets, _ := w.store.Value(steps.MediaField).([]domain.MediaAsset)
	return append([]domain.MediaAsset(nil), assets...)
}

func (w *Workflow) setAssets(assets []domain.MediaAsset) {
	if len(assets) == 0 {
		assets = nil
	}
	w.store.Set(steps.MediaField, assets)
}

// AddMedia compresses an image and appends it as a pending asset.
func (w *Workflow) AddMedia(f domain.File) (domain.MediaAsset, error) {
	if err := w.mutable(); err != nil {
		return domain.MediaAsset{}, w.fail(err)
	}
	out, err := media.Compress(bytes.NewReader(f.Data), w.limits.MaxWidth, w.limits.MaxHeight, w.limits.Quality)
	if err != nil {
		return domain.MediaAsset{}, w.fail(fmt.Errorf("%s: %w", f.Name, err))
	}
	file := &domain.File{Name: jpegName(f.Name), ContentType: media.ContentType, Data: out.Data}
	asset := domain.MediaAsset{
		PreviewURL: w.previews.Create(*file),
		File:       file,
		Width:      out.Width,
		Height:     out.Height,
	}
	w.setAssets(append(w.Assets(), asset))
	w.log.Debug("media added",
		zap.String("name", file.Name),
		zap.Int("width", out.Width),
		zap.Int("height", out.Height),
		zap.Int("bytes", len(out.Data)))
	w.clearErr()
	return asset, nil
}

// RemoveMedia drops the asset at index and releases its preview.
func (w *Workflow) RemoveMedia(index int) error {
	if err := w.mutable(); err != nil {
		return w.fail(err)
	}
	assets := w.Assets()
	if index < 0 || index >= len(assets) {
		return w.fail(fmt.Errorf("media index %d out of range", index))
	}
	if assets[index].File != nil {
		w.previews.Revoke(assets[index].PreviewURL)
	}
	w.setAssets(append(assets[:index], assets[index+1:]...))
	return nil
}

// Close releases every preview URL.
func (w *Workflow) Close() {
	w.previews.Close()
}

// Back retreats one step. Always allowed.
func (w *Workflow) Back() bool {
	return w.step.Back()
}

// Next validates the current step, sends its section and advances.
// In read-only mode it only navigates.
func (w *Workflow) Next(ctx context.Context) error {
	if w.step.Last() {
		return w.fail(ErrLastStep)
	}
	if w.state == StateReadOnly || w.state == StateSuccess {
		w.step.Forward()
		return nil
	}
	st := w.CurrentStep()
	rec := w.store.Get()
	if !steps.Check(st.Rule, rec) {
		return w.fail(feedback.ValidationError{Step: st.Name})
	}
	if err := w.sendStep(ctx, st, rec); err != nil {
		return w.fail(err)
	}
	w.clearErr()
	w.step.Forward()
	return nil
}

func (w *Workflow) sendStep(ctx context.Context, st steps.Step, rec form.Record) error {
	if w.draft.Empty() {
		return w.createDraft(ctx, st, rec)
	}
	if st.Section.Deferred() || st.Section == steps.SectionNone {
		return nil
	}
	return w.sendSection(ctx, st, rec)
}

func (w *Workflow) createDraft(ctx context.Context, st steps.Step, rec form.Record) error {
	w.state = StateDraftPending
	fields := rec.Pick(st.Fields...)
	e, err := w.backend.CreateDraft(ctx, string(w.kind), fields)
	if err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	if e.ID == "" {
		return errors.New("create draft: backend returned no id")
	}
	w.draft = domain.EntityDraft{ID: e.ID, Status: domain.Status(e.Status)}
	w.state = StateDraftCreated
	w.log.Info("draft created", zap.String("id", e.ID))
	return nil
}

func (w *Workflow) sendSection(ctx context.Context, st steps.Step, rec form.Record) error {
	id := w.draft.ID
	var err error
	switch st.Section {
	case steps.SectionBasic:
		err = w.backend.UpdateBasicInfo(ctx, id, rec.Pick(st.Fields...))
	case steps.SectionLocation:
		err = w.backend.UpdateLocation(ctx, id, rec.Pick(st.Fields...))
	case steps.SectionVenuePricing:
		err = w.backend.UpdateVenuePricing(ctx, id, rec.Pick(st.Fields...))
	case steps.SectionAmenities:
		err = w.backend.UpdateAmenities(ctx, id, listItems(rec, st.Fields))
	default:
		return nil
	}
	if err != nil {
		w.log.Warn("section update failed", zap.String("id", id), zap.String("section", string(st.Section)), zap.Error(err))
		return fmt.Errorf("update %s: %w", st.Section, err)
	}
	w.log.Debug("section updated", zap.String("id", id), zap.String("section", string(st.Section)))
	return nil
}

// Submit uploads pending media, applies pricing and submits the draft for
// review. A failure leaves the workflow in StateFailed; calling Submit again
// retries from the upload.
func (w *Workflow) Submit(ctx context.Context) error {
	if err := w.mutable(); err != nil {
		return w.fail(err)
	}
	if w.draft.Empty() {
		return w.fail(ErrNoDraft)
	}
	if !w.step.Last() {
		return w.fail(ErrNotLastStep)
	}
	rec := w.store.Get()
	for i, st := range w.plan.Steps {
		if !steps.Check(st.Rule, rec) {
			return w.fail(fmt.Errorf("step %d: %w", i+1, feedback.ValidationError{Step: st.Name}))
		}
	}
	// The last step is never left through Next, so its section goes now.
	if last := w.plan.Steps[w.plan.Len()-1]; !last.Section.Deferred() {
		if err := w.sendSection(ctx, last, rec); err != nil {
			return w.failSubmit(err)
		}
	}

	w.state = StateUploading
	if err := w.uploadPending(ctx); err != nil {
		return w.failSubmit(err)
	}

	w.state = StateFinalizing
	if idx := w.plan.SectionIndex(steps.SectionVenuePricing); idx > 0 {
		st, _ := w.plan.Step(idx)
		if err := w.sendSection(ctx, st, w.store.Get()); err != nil {
			return w.failSubmit(err)
		}
	}
	e, err := w.backend.Submit(ctx, w.draft.ID)
	if err != nil {
		return w.failSubmit(fmt.Errorf("submit: %w", err))
	}
	w.draft.Status = domain.Status(e.Status)
	w.state = StateSuccess
	w.clearErr()
	w.log.Info("entity submitted", zap.String("id", w.draft.ID), zap.String("status", e.Status))
	return nil
}

func (w *Workflow) failSubmit(err error) error {
	w.state = StateFailed
	return w.fail(err)
}

func (w *Workflow) uploadPending(ctx context.Context) error {
	assets := w.Assets()
	var files []hostflowsdk.File
	var pending []int
	for i, a := range assets {
		if !a.Pending() {
			continue
		}
		files = append(files, hostflowsdk.File{Name: a.File.Name, ContentType: a.File.ContentType, Data: a.File.Data})
		pending = append(pending, i)
	}
	if len(files) == 0 {
		w.setProgress(100)
		return nil
	}
	w.setProgress(0)
	uploaded, err := w.backend.UploadMedia(ctx, w.draft.ID, files, w.setProgress)
	if err != nil {
		return fmt.Errorf("upload media: %w", err)
	}
	// Assets the backend did not acknowledge stay pending for the next Submit.
	for n, i := range pending {
		if n >= len(uploaded) {
			break
		}
		w.previews.Revoke(assets[i].PreviewURL)
		assets[i].File = nil
		assets[i].RemoteURL = uploaded[n].URL
		assets[i].PreviewURL = uploaded[n].URL
	}
	w.setAssets(assets)
	if len(uploaded) < len(files) {
		return fmt.Errorf("upload media: backend stored %d of %d files", len(uploaded), len(files))
	}
	w.setProgress(100)
	w.log.Info("media uploaded", zap.String("id", w.draft.ID), zap.Int("files", len(files)))
	return nil
}

func (w *Workflow) setProgress(p int) {
	w.progress.Store(int32(p))
	if w.onProgress != nil {
		w.onProgress(p)
	}
}

// Load enters edit mode for an existing entity. Approved entities put the
// workflow in StateReadOnly.
func (w *Workflow) Load(ctx context.Context, id string) error {
	e, err := w.backend.GetEntity(ctx, id)
	if err != nil {
		return w.fail(fmt.Errorf("load %s: %w", id, err))
	}
	if domain.Kind(e.Kind) != w.kind {
		return w.fail(fmt.Errorf("entity %s is a %s, not a %s", id, e.Kind, w.kind))
	}
	w.previews.Close()
	w.store.Reset(w.initialRecord())
	w.store.Merge(Hydrate(w.kind, e))
	w.draft = domain.EntityDraft{ID: e.ID, Status: domain.Status(e.Status)}
	w.step = form.NewStepState(w.plan.Len())
	w.state = StateDraftCreated
	if w.draft.Status.ReadOnly() {
		w.state = StateReadOnly
	}
	w.clearErr()
	w.log.Info("entity loaded", zap.String("id", e.ID), zap.String("status", e.Status), zap.String("state", string(w.state)))
	return nil
}

// ResumeDraft loads the newest draft of this kind owned by the session user.
// It reports false when there is none.
func (w *Workflow) ResumeDraft(ctx context.Context) (bool, error) {
	items, err := w.backend.MyEntities(ctx)
	if err != nil {
		return false, w.fail(fmt.Errorf("list my entities: %w", err))
	}
	drafts := catalog.OwnedDrafts(items, w.kind)
	if len(drafts) == 0 {
		return false, nil
	}
	return true, w.Load(ctx, drafts[0].ID)
}

func (w *Workflow) fail(err error) error {
	w.errMsg = feedback.Message(err)
	w.log.Debug("workflow error", zap.String("state", string(w.state)), zap.Int("step", w.step.Index), zap.Error(err))
	return err
}

func (w *Workflow) clearErr() { w.errMsg = "" }

// listItems joins list fields and comma-separated custom fields.
func listItems(rec form.Record, fields []string) []string {
	items := []string{}
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		items = append(items, s)
	}
	for _, f := range fields {
		switch v := rec[f].(type) {
		case []string:
			for _, s := range v {
				add(s)
			}
		case []any:
			for _, s := range v {
				if str, ok := s.(string); ok {
					add(str)
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				add(s)
			}
		}
	}
	return items
}

func jpegName(name string) string {
	if name == "" {
		return "image.jpg"
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name + ".jpg"
}
