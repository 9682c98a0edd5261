package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostflow/internal/app"
	"hostflow/internal/config"
	"hostflow/internal/db"
	"hostflow/internal/domain"
	"hostflow/internal/engine"
	"hostflow/internal/feedback"
	"hostflow/internal/membership"
	"hostflow/internal/migrate"
	"hostflow/internal/workflow"
	hostflowsdk "hostflow/sdk/go"
)

const testUploadLimit = 64 << 10

type testServer struct {
	URL   string
	close func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Server.MaxUploadBytes = testUploadLimit
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, nil)
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{JWTSecret: cfg.Server.JWTSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL: "http://" + ln.Addr().String(),
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func (s *testServer) login(t *testing.T, p hostflowsdk.Profile) (*hostflowsdk.Client, domain.Session) {
	t.Helper()
	c := hostflowsdk.New(s.URL, "")
	session, err := app.Login(context.Background(), c, p)
	require.NoError(t, err)
	return c, session
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func pngFile(t *testing.T, w, h int) domain.File {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{G: 180, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return domain.File{Name: "cover.png", ContentType: "image/png", Data: buf.Bytes()}
}

func TestAuthEnvelope(t *testing.T) {
	srv := newTestServer(t)

	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.JSONEq(t, `{"error":{"code":"unauthorized","message":"authentication required"}}`, string(data))

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/auth/dev/login", "", map[string]any{"user_id": "host-1"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/entities", login.Token, map[string]any{"kind": "castle"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestEventWorkflowEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	host, session := srv.login(t, hostflowsdk.Profile{UserID: "host-1", Name: "Asha"})
	assert.Equal(t, "Asha", session.Profile.Name)

	var progress []int
	w, err := workflow.New(domain.KindEvent, host, session, workflow.WithProgress(func(p int) { progress = append(progress, p) }))
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Fill(domain.Event{
		Title:       "Meetup",
		Date:        "2025-05-01",
		Time:        "10:00",
		Category:    "tech",
		Description: "Go talks",
		Address:     "1 Main St",
		City:        "Pune",
		TicketPrice: 250,
	}))
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Next(ctx), w.Err())
	}
	_, err = w.AddMedia(pngFile(t, 48, 32))
	require.NoError(t, err)
	require.NoError(t, w.Submit(ctx), w.Err())
	assert.Equal(t, workflow.StateSuccess, w.State())
	assert.Equal(t, 100, w.Progress())
	assert.Equal(t, 100, progress[len(progress)-1])

	id := w.Draft().ID
	ent, err := host.GetEntity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "submitted", ent.Status)
	assert.Equal(t, "2025-05-01", ent.Fields["start_date"])
	assert.Equal(t, "10:00", ent.Fields["start_time"])
	assert.Equal(t, 250.0, ent.Fields["ticket_price"])
	require.Len(t, ent.Media, 1)
	assert.Equal(t, "image/jpeg", ent.Media[0].ContentType)

	res, data := doJSON(t, http.MethodGet, srv.URL+ent.Media[0].URL, host.BearerToken, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/jpeg", res.Header.Get("Content-Type"))
	assert.Len(t, data, int(ent.Media[0].Size))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/entities/"+id+"/events", host.BearerToken, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var trail eventList
	require.NoError(t, json.Unmarshal(data, &trail))
	var types []string
	for _, evt := range trail.Items {
		types = append(types, evt.Type)
	}
	assert.Equal(t, []string{
		"entity.created", "entity.section_updated", "entity.section_updated",
		"entity.media_uploaded", "entity.section_updated", "entity.submitted",
	}, types)

	_, err = host.Approve(ctx, id)
	assert.True(t, hostflowsdk.IsCode(err, feedback.CodeForbidden))

	mod, _ := srv.login(t, hostflowsdk.Profile{UserID: "mod-1", Roles: []string{"moderator"}})
	approved, err := mod.Approve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "approved", approved.Status)

	edit, err := workflow.New(domain.KindEvent, host, session)
	require.NoError(t, err)
	defer edit.Close()
	require.NoError(t, edit.Load(ctx, id))
	assert.Equal(t, workflow.StateReadOnly, edit.State())
	assert.Equal(t, "2025-05-01", edit.Record()["date"])
	assert.Len(t, edit.Assets(), 1)
	assert.ErrorIs(t, edit.Submit(ctx), workflow.ErrReadOnly)
	require.NoError(t, edit.Next(ctx))

	err = host.UpdateBasicInfo(ctx, id, map[string]any{"title": "Changed"})
	assert.True(t, hostflowsdk.IsCode(err, feedback.CodeReadOnly))
	assert.Equal(t, "This listing is approved and can no longer be edited.", feedback.Message(err))
}

func TestResumeDraftAcrossSessions(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	host, session := srv.login(t, hostflowsdk.Profile{UserID: "host-1"})

	w, err := workflow.New(domain.KindProperty, host, session)
	require.NoError(t, err)
	require.NoError(t, w.Fill(domain.PropertyListing{Title: "Loft", Category: "loft", Description: "Bright", Address: "2 Beach Rd", City: "Goa", NightlyPrice: 80}))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.Next(ctx))
	w.Close()

	resumed, err := workflow.New(domain.KindProperty, host, session)
	require.NoError(t, err)
	defer resumed.Close()
	found, err := resumed.ResumeDraft(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, w.Draft().ID, resumed.Draft().ID)
	assert.Equal(t, workflow.StateDraftCreated, resumed.State())
	rec := resumed.Record()
	assert.Equal(t, "Goa", rec["city"])
	// Pricing is deferred to submit, so it has not reached the backend yet.
	assert.NotContains(t, rec, "nightly_price")
}

func TestUploadTooLarge(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	host, _ := srv.login(t, hostflowsdk.Profile{UserID: "host-1"})
	ent, err := host.CreateDraft(ctx, "property", map[string]any{"title": "Loft"})
	require.NoError(t, err)

	big := hostflowsdk.File{Name: "big.jpg", ContentType: "image/jpeg", Data: make([]byte, testUploadLimit+1)}
	_, err = host.UploadMedia(ctx, ent.ID, []hostflowsdk.File{big}, nil)
	require.Error(t, err)
	assert.True(t, hostflowsdk.IsCode(err, feedback.CodePayloadTooLarge), err.Error())
	assert.Contains(t, feedback.Message(err), "too large")

	got, err := host.GetEntity(ctx, ent.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Media)
}

func TestGroupMembershipFlow(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	owner, _ := srv.login(t, hostflowsdk.Profile{UserID: "owner-1"})
	mod, _ := srv.login(t, hostflowsdk.Profile{UserID: "mod-1", Roles: []string{"moderator"}})
	guest, _ := srv.login(t, hostflowsdk.Profile{UserID: "guest-1"})

	g, err := owner.CreateDraft(ctx, "group", map[string]any{"title": "Runners"})
	require.NoError(t, err)
	_, err = owner.Submit(ctx, g.ID)
	require.NoError(t, err)
	_, err = mod.Approve(ctx, g.ID)
	require.NoError(t, err)

	ownerView := membership.NewTracker(g.ID, owner, nil)
	require.NoError(t, ownerView.Refresh(ctx))
	assert.True(t, ownerView.Member())
	err = ownerView.Leave(ctx)
	assert.True(t, hostflowsdk.IsCode(err, feedback.CodeOwnerCannotLeave))
	assert.True(t, ownerView.Member())

	guestView := membership.NewTracker(g.ID, guest, nil)
	require.NoError(t, guestView.Refresh(ctx))
	assert.False(t, guestView.Member())
	require.NoError(t, guestView.Join(ctx))
	assert.True(t, guestView.Member())
	// A second join answers already_member, which confirms the state.
	require.NoError(t, guestView.Join(ctx))
	require.NoError(t, guestView.Refresh(ctx))
	assert.True(t, guestView.Member())

	m, err := guest.Membership(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Members)

	require.NoError(t, guestView.Leave(ctx))
	require.NoError(t, guestView.Leave(ctx))
	require.NoError(t, guestView.Refresh(ctx))
	assert.False(t, guestView.Member())
}
