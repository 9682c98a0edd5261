package workflow_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostflow/internal/domain"
	"hostflow/internal/feedback"
	"hostflow/internal/form"
	"hostflow/internal/workflow"
	hostflowsdk "hostflow/sdk/go"
)

type call struct {
	Op     string
	ID     string
	Fields map[string]any
}

type fakeBackend struct {
	calls    []call
	entities map[string]hostflowsdk.Entity
	mine     []hostflowsdk.Entity
	failOn   map[string]error
	nextID   string
	uploaded int
	// stored caps how many files UploadMedia acknowledges; 0 means all.
	stored   int
}

func newFake() *fakeBackend {
	return &fakeBackend{entities: map[string]hostflowsdk.Entity{}, failOn: map[string]error{}, nextID: "ent-1"}
}

func (f *fakeBackend) record(op, id string, fields map[string]any) error {
	f.calls = append(f.calls, call{Op: op, ID: id, Fields: fields})
	if err, ok := f.failOn[op]; ok {
		delete(f.failOn, op)
		return err
	}
	return nil
}

func (f *fakeBackend) ops() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Op)
	}
	return out
}

func (f *fakeBackend) CreateDraft(ctx context.Context, kind string, fields map[string]any) (hostflowsdk.Entity, error) {
	if err := f.record("create", "", fields); err != nil {
		return hostflowsdk.Entity{}, err
	}
	return hostflowsdk.Entity{ID: f.nextID, Kind: kind, Status: "draft"}, nil
}

func (f *fakeBackend) UpdateBasicInfo(ctx context.Context, id string, fields map[string]any) error {
	return f.record("basic", id, fields)
}

func (f *fakeBackend) UpdateLocation(ctx context.Context, id string, fields map[string]any) error {
	return f.record("location", id, fields)
}

func (f *fakeBackend) UpdateVenuePricing(ctx context.Context, id string, fields map[string]any) error {
	return f.record("pricing", id, fields)
}

func (f *fakeBackend) UpdateAmenities(ctx context.Context, id string, items []string) error {
	return f.record("amenities", id, map[string]any{"items": items})
}

func (f *fakeBackend) UploadMedia(ctx context.Context, id string, files []hostflowsdk.File, onProgress hostflowsdk.ProgressFunc) ([]hostflowsdk.Media, error) {
	if err := f.record("upload", id, map[string]any{"count": len(files)}); err != nil {
		onProgress(40)
		return nil, err
	}
	onProgress(50)
	var out []hostflowsdk.Media
	for n, file := range files {
		if f.stored > 0 && n >= f.stored {
			break
		}
		f.uploaded++
		out = append(out, hostflowsdk.Media{Name: file.Name, URL: "https://cdn.test/" + file.Name})
	}
	return out, nil
}

func (f *fakeBackend) Submit(ctx context.Context, id string) (hostflowsdk.Entity, error) {
	if err := f.record("submit", id, nil); err != nil {
		return hostflowsdk.Entity{}, err
	}
	return hostflowsdk.Entity{ID: id, Status: "submitted"}, nil
}

func (f *fakeBackend) GetEntity(ctx context.Context, id string) (hostflowsdk.Entity, error) {
	e, ok := f.entities[id]
	if !ok {
		return hostflowsdk.Entity{}, &hostflowsdk.APIError{StatusCode: 404, Code: feedback.CodeNotFound}
	}
	return e, nil
}

func (f *fakeBackend) MyEntities(ctx context.Context) ([]hostflowsdk.Entity, error) {
	return f.mine, nil
}

func pngImage(t *testing.T, w, h int) domain.File {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return domain.File{Name: "photo.png", ContentType: "image/png", Data: buf.Bytes()}
}

func newWorkflow(t *testing.T, kind domain.Kind, b workflow.Backend, opts ...workflow.Option) *workflow.Workflow {
	t.Helper()
	w, err := workflow.New(kind, b, domain.Session{UserID: "u1"}, opts...)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func fillProperty(t *testing.T, w *workflow.Workflow) {
	t.Helper()
	require.NoError(t, w.Fill(domain.PropertyListing{
		Title:           "Sea View Loft",
		Category:        "loft",
		Description:     "Bright loft by the sea",
		Address:         "1 Beach Rd",
		City:            "Goa",
		HourlyPrice:     12,
		Amenities:       []string{"wifi"},
		CustomAmenities: "parking, wifi",
	}))
}

func TestMeetupDraftCarriesBasicsOnly(t *testing.T) {
	b := newFake()
	w := newWorkflow(t, domain.KindEvent, b)
	require.NoError(t, w.Set("title", "Meetup"))
	require.NoError(t, w.Set("date", "2025-05-01"))
	require.NoError(t, w.Set("time", "10:00"))
	require.NoError(t, w.Set("description", "talks"))

	require.NoError(t, w.Next(context.Background()))

	require.Len(t, b.calls, 1)
	want := map[string]any{
		"title":      "Meetup",
		"date":       "2025-05-01",
		"time":       "10:00",
		"event_type": "public",
		"event_mode": "in_person",
	}
	if diff := cmp.Diff(want, b.calls[0].Fields); diff != "" {
		t.Fatalf("create payload mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, workflow.StateDraftCreated, w.State())
	assert.Equal(t, "ent-1", w.Draft().ID)
	assert.Equal(t, 2, w.Step().Index)
}

func TestDraftCreatedOnceThenSectionsReuseID(t *testing.T) {
	b := newFake()
	w := newWorkflow(t, domain.KindProperty, b)
	fillProperty(t, w)
	ctx := context.Background()

	require.NoError(t, w.Next(ctx))
	assert.True(t, w.Back())
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.Next(ctx))

	assert.Equal(t, []string{"create", "basic", "location"}, b.ops())
	for _, c := range b.calls[1:] {
		assert.Equal(t, "ent-1", c.ID)
	}
}

func TestInvalidStepMakesNoCall(t *testing.T) {
	b := newFake()
	w := newWorkflow(t, domain.KindProperty, b)
	require.NoError(t, w.Set("title", "   "))

	err := w.Next(context.Background())
	var ve feedback.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Basics", ve.Step)
	assert.Empty(t, b.calls)
	assert.Equal(t, 1, w.Step().Index)
	assert.Equal(t, workflow.StateUninitialized, w.State())
	assert.Contains(t, w.Err(), "please fill all required fields")
}

func TestSectionFailureKeepsDraft(t *testing.T) {
	b := newFake()
	w := newWorkflow(t, domain.KindProperty, b)
	fillProperty(t, w)
	ctx := context.Background()
	require.NoError(t, w.Next(ctx))

	b.failOn["location"] = &hostflowsdk.APIError{StatusCode: 500, Message: "db down"}
	require.Error(t, w.Next(ctx))
	assert.Equal(t, workflow.StateDraftCreated, w.State())
	assert.Equal(t, "ent-1", w.Draft().ID)
	assert.Equal(t, 2, w.Step().Index)
	assert.Equal(t, "db down", w.Err())

	require.NoError(t, w.Next(ctx))
	assert.Empty(t, w.Err())
	assert.Equal(t, 3, w.Step().Index)
}

func TestSubmitOrdersUploadPricingSubmit(t *testing.T) {
	b := newFake()
	var seen []int
	w := newWorkflow(t, domain.KindProperty, b, workflow.WithProgress(func(p int) { seen = append(seen, p) }))
	fillProperty(t, w)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Next(ctx))
	}
	_, err := w.AddMedia(pngImage(t, 64, 32))
	require.NoError(t, err)

	require.NoError(t, w.Submit(ctx))

	assert.Equal(t, []string{"create", "location", "amenities", "upload", "pricing", "submit"}, b.ops())
	assert.Equal(t, map[string]any{"items": []string{"wifi", "parking"}}, b.calls[2].Fields)
	assert.Equal(t, map[string]any{"hourly_price": float64(12)}, b.calls[4].Fields)
	assert.Equal(t, workflow.StateSuccess, w.State())
	assert.Equal(t, domain.StatusSubmitted, w.Draft().Status)
	assert.Equal(t, 100, w.Progress())
	assert.Equal(t, []int{0, 50, 100}, seen)

	assets := w.Assets()
	require.Len(t, assets, 1)
	assert.False(t, assets[0].Pending())
	assert.Equal(t, "https://cdn.test/photo.jpg", assets[0].RemoteURL)

	assert.ErrorIs(t, w.Set("title", "x"), workflow.ErrSubmitted)
}

func TestUploadFailureIsRecoverable(t *testing.T) {
	b := newFake()
	w := newWorkflow(t, domain.KindProperty, b)
	fillProperty(t, w)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Next(ctx))
	}
	_, err := w.AddMedia(pngImage(t, 16, 16))
	require.NoError(t, err)

	b.failOn["upload"] = &hostflowsdk.APIError{StatusCode: 413, Code: feedback.CodePayloadTooLarge}
	require.Error(t, w.Submit(ctx))
	assert.Equal(t, workflow.StateFailed, w.State())
	assert.Contains(t, w.Err(), "too large")
	assert.True(t, w.Assets()[0].Pending())

	require.NoError(t, w.Submit(ctx))
	assert.Equal(t, workflow.StateSuccess, w.State())
	assert.Equal(t, 1, b.uploaded)
}

func TestSubmitFromMiddleStepSendsNothing(t *testing.T) {
	b := newFake()
	w := newWorkflow(t, domain.KindProperty, b)
	fillProperty(t, w)
	ctx := context.Background()
	require.NoError(t, w.Next(ctx))
	_, err := w.AddMedia(pngImage(t, 16, 16))
	require.NoError(t, err)

	assert.ErrorIs(t, w.Submit(ctx), workflow.ErrNotLastStep)
	assert.Equal(t, []string{"create"}, b.ops())
	assert.Equal(t, 2, w.Step().Index)
	assert.Equal(t, workflow.StateDraftCreated, w.State())
	assert.NotEmpty(t, w.Err())

	for !w.Step().Last() {
		require.NoError(t, w.Next(ctx))
	}
	require.NoError(t, w.Submit(ctx))
	assert.Equal(t, []string{"create", "location", "amenities", "upload", "pricing", "submit"}, b.ops())
}

func TestPartialUploadKeepsUnstoredAssetsPending(t *testing.T) {
	b := newFake()
	b.stored = 1
	w := newWorkflow(t, domain.KindProperty, b)
	fillProperty(t, w)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Next(ctx))
	}
	_, err := w.AddMedia(pngImage(t, 16, 16))
	require.NoError(t, err)
	second, err := w.AddMedia(pngImage(t, 20, 10))
	require.NoError(t, err)

	require.Error(t, w.Submit(ctx))
	assert.Equal(t, workflow.StateFailed, w.State())
	assets := w.Assets()
	require.Len(t, assets, 2)
	assert.False(t, assets[0].Pending())
	assert.Equal(t, "https://cdn.test/photo.jpg", assets[0].RemoteURL)
	assert.True(t, assets[1].Pending())
	assert.Equal(t, second.PreviewURL, assets[1].PreviewURL)
	assert.Empty(t, assets[1].RemoteURL)
	assert.NotContains(t, b.ops(), "submit")

	b.stored = 0
	require.NoError(t, w.Submit(ctx))
	assert.Equal(t, workflow.StateSuccess, w.State())
	assert.Equal(t, 2, b.uploaded)
	assert.False(t, w.Assets()[1].Pending())
}

func TestSubmitWithoutDraft(t *testing.T) {
	w := newWorkflow(t, domain.KindGroup, newFake())
	assert.ErrorIs(t, w.Submit(context.Background()), workflow.ErrNoDraft)
}

func TestFreeEventSkipsTicketPrice(t *testing.T) {
	b := newFake()
	w := newWorkflow(t, domain.KindEvent, b)
	require.NoError(t, w.Fill(domain.Event{
		Title:       "Picnic",
		Date:        "2025-07-01",
		Time:        "10:00",
		Category:    "outdoor",
		Description: "bring food",
		Address:     "Park",
		City:        "Pune",
		EventPrice:  "free",
	}))
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Next(ctx))
	}
	_, err := w.AddMedia(pngImage(t, 8, 8))
	require.NoError(t, err)
	require.NoError(t, w.Submit(ctx))

	assert.Equal(t, []string{"create", "basic", "location", "upload", "pricing", "submit"}, b.ops())
	assert.Equal(t, map[string]any{"event_price": "free"}, b.calls[4].Fields)
}

func TestApprovedEntityIsReadOnly(t *testing.T) {
	b := newFake()
	b.entities["e9"] = hostflowsdk.Entity{
		ID:     "e9",
		Kind:   "event",
		Status: "approved",
		Fields: map[string]any{"title": "Launch", "start_date": "2025-05-05", "start_time": "09:00"},
		Media:  []hostflowsdk.Media{{URL: "https://cdn.test/a.jpg"}},
	}
	w := newWorkflow(t, domain.KindEvent, b)
	ctx := context.Background()
	require.NoError(t, w.Load(ctx, "e9"))

	assert.Equal(t, workflow.StateReadOnly, w.State())
	rec := w.Record()
	assert.Equal(t, "2025-05-05", rec["date"])
	assert.Equal(t, "09:00", rec["time"])
	assert.NotContains(t, rec, "start_date")

	assert.ErrorIs(t, w.Submit(ctx), workflow.ErrReadOnly)
	assert.ErrorIs(t, w.Set("title", "x"), workflow.ErrReadOnly)
	assert.NotEmpty(t, w.Err())

	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.Next(ctx))
	assert.Equal(t, 3, w.Step().Index)
	assert.True(t, w.Back())
	assert.Empty(t, b.calls)
}

func TestLoadRejectsOtherKind(t *testing.T) {
	b := newFake()
	b.entities["p1"] = hostflowsdk.Entity{ID: "p1", Kind: "property", Status: "draft"}
	w := newWorkflow(t, domain.KindGroup, b)
	require.Error(t, w.Load(context.Background(), "p1"))
	assert.True(t, w.Draft().Empty())
}

func TestResumeDraftPicksNewest(t *testing.T) {
	b := newFake()
	older := hostflowsdk.Entity{ID: "p1", Kind: "property", Status: "draft", UpdatedAt: "2025-01-01T00:00:00Z"}
	newer := hostflowsdk.Entity{
		ID:        "p2",
		Kind:      "property",
		Status:    "draft",
		UpdatedAt: "2025-02-01T00:00:00Z",
		Fields:    map[string]any{"title": "Loft", "price_per_night": 80.0, "amenities": []any{"wifi"}},
	}
	b.mine = []hostflowsdk.Entity{older, newer}
	b.entities["p1"], b.entities["p2"] = older, newer

	w := newWorkflow(t, domain.KindProperty, b)
	found, err := w.ResumeDraft(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "p2", w.Draft().ID)
	assert.Equal(t, workflow.StateDraftCreated, w.State())
	rec := w.Record()
	assert.Equal(t, 80.0, rec["nightly_price"])
	assert.Equal(t, []string{"wifi"}, rec["amenities"])

	w2 := newWorkflow(t, domain.KindGroup, b)
	found, err = w2.ResumeDraft(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestJobApplicationPrefill(t *testing.T) {
	session := domain.Session{
		UserID:  "u1",
		Profile: domain.Profile{Name: "Asha", Email: "asha@example.com", Phone: "9876543210"},
	}
	w, err := workflow.New(domain.KindJobApplication, newFake(), session)
	require.NoError(t, err)
	rec := w.Record()
	assert.Equal(t, "Asha", rec["full_name"])
	assert.Equal(t, "+91", rec["phone_code"])
	assert.Equal(t, "9876543210", rec["phone_number"])

	require.NoError(t, w.Set("phone", "+14155551234"))
	rec = w.Record()
	assert.Equal(t, "+1", rec["phone_code"])
	assert.Equal(t, "4155551234", rec["phone_number"])
}

func TestJobApplicationSubmitFlushesCover(t *testing.T) {
	b := newFake()
	session := domain.Session{Profile: domain.Profile{Name: "Asha", Email: "a@x.io", Phone: "+919876543210"}}
	w, err := workflow.New(domain.KindJobApplication, b, session, workflow.WithPhoneDefault("+1"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, w.Set("job_id", "job-7"))
	require.NoError(t, w.Next(ctx))
	assert.ErrorIs(t, w.Next(ctx), workflow.ErrLastStep)
	require.NoError(t, w.Set("cover_letter", "hire me"))
	require.NoError(t, w.Submit(ctx))

	assert.Equal(t, []string{"create", "basic", "submit"}, b.ops())
	assert.Equal(t, map[string]any{"cover_letter": "hire me"}, b.calls[1].Fields)
	assert.Equal(t, 100, w.Progress())
}

func TestAddAndRemoveMedia(t *testing.T) {
	w := newWorkflow(t, domain.KindGroup, newFake(), workflow.WithMediaLimits(workflow.MediaLimits{MaxWidth: 10, MaxHeight: 10, Quality: 70}))
	a, err := w.AddMedia(pngImage(t, 40, 20))
	require.NoError(t, err)
	assert.Equal(t, 10, a.Width)
	assert.Equal(t, 5, a.Height)
	assert.Equal(t, "photo.jpg", a.File.Name)
	assert.True(t, form.Present(w.Record()["media"]))

	_, err = w.AddMedia(domain.File{Name: "bad.png", Data: []byte("nope")})
	require.Error(t, err)

	require.NoError(t, w.RemoveMedia(0))
	assert.Empty(t, w.Assets())
	assert.False(t, form.Present(w.Record()["media"]))
	assert.Error(t, w.RemoveMedia(0))
}

func TestFillRejectsOtherKind(t *testing.T) {
	w := newWorkflow(t, domain.KindGroup, newFake())
	err := w.Fill(domain.Event{Title: "x"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, workflow.ErrReadOnly))
}
