package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/jarvik/webclient/internal/model/account"
	"github.com/zhouzirui/jarvik/webclient/internal/model/ask"
	"github.com/zhouzirui/jarvik/webclient/internal/model/session"
	"github.com/zhouzirui/jarvik/webclient/internal/service/activity"
	"github.com/zhouzirui/jarvik/webclient/internal/service/backend"
	"github.com/zhouzirui/jarvik/webclient/internal/service/blob"
	"github.com/zhouzirui/jarvik/webclient/internal/service/env"
)

type backendStub struct {
	devlabURL string
	lastAuth  string
	lastKey   string
}

func (b *backendStub) handler(name string) http.Handler {
	r := chi.NewRouter()
	r.Get("/devlab.json", func(w http.ResponseWriter, _ *http.Request) {
		if b.devlabURL == "" {
			http.NotFound(w, nil)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"url": b.devlabURL})
	})
	r.Post("/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"tok-` + name + `"}`))
	})
	r.Post("/ask", func(w http.ResponseWriter, req *http.Request) {
		b.lastAuth = req.Header.Get("Authorization")
		b.lastKey = req.Header.Get("X-API-Key")
		var body map[string]any
		json.NewDecoder(req.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body["message"] == "expired" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		w.Write([]byte(`{"response":"` + name + `","debug":[]}`))
	})
	r.Post("/ask_file", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("X-Answer", "ok")
		w.Header().Set("Content-Disposition", `attachment; filename="answer.pdf"`)
		w.Write([]byte("%PDF-1.4"))
	})
	r.Get("/answers/{name}", func(w http.ResponseWriter, req *http.Request) {
		b.lastAuth = req.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(name + ":" + chi.URLParam(req, "name")))
	})
	r.Get("/model", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"token expired"}`))
	})
	return r
}

type fixture struct {
	router *Router
	store  *session.MemoryStore
	local  *backendStub
	devlab *httptest.Server
}

func newFixture(t *testing.T, withDevlab bool) *fixture {
	t.Helper()
	devStub := &backendStub{}
	devlab := httptest.NewServer(devStub.handler("devlab"))
	t.Cleanup(devlab.Close)

	local := &backendStub{}
	if withDevlab {
		local.devlabURL = devlab.URL + "/"
	}
	srv := httptest.NewServer(local.handler("local"))
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore(session.Session{})
	r := New(Options{
		Origin:           srv.URL,
		DevlabConfigPath: "/devlab.json",
		Store:            store,
		Blobs:            blob.NewStore("/api/blobs/", 0),
	})
	r.Discover(context.Background())
	return &fixture{router: r, store: store, local: local, devlab: devlab}
}

func TestAskUsesActiveEnvironment(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, "local", f.router.Ask(context.Background(), ask.Request{Message: "hi"}).Answer)

	state := f.router.ToggleEnvironment()
	assert.Equal(t, env.Devlab, state.Active.Name)
	assert.Equal(t, "devlab ("+f.devlab.URL+"/)", state.Label)
	assert.Equal(t, "devlab", f.router.Ask(context.Background(), ask.Request{Message: "hi"}).Answer)

	state, err := f.router.UseEnvironment("LOCAL")
	require.NoError(t, err)
	assert.Equal(t, env.Local, state.Active.Name)
}

func TestToggleWithoutDevlabIsNoop(t *testing.T) {
	f := newFixture(t, false)

	before := f.router.Environment()
	after := f.router.ToggleEnvironment()

	assert.Equal(t, before, after)
	assert.Equal(t, "local", after.Label)
	assert.False(t, after.DevlabAvailable)

	_, err := f.router.UseEnvironment(env.Devlab)
	assert.ErrorIs(t, err, env.ErrDevlabUnavailable)
}

func TestLoginStoresTokenAndKeepsAPIKey(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.router.SetAPIKey(" key-1 "))

	require.NoError(t, f.router.Login(context.Background(), "eva", "pw"))

	sess, _ := f.store.Load()
	assert.Equal(t, session.Session{Token: "tok-local", APIKey: "key-1"}, sess)
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer tok-local",
		"X-API-Key":     "key-1",
	}, f.router.HeadersFor())

	f.router.Ask(context.Background(), ask.Request{Message: "hi"})
	assert.Equal(t, "Bearer tok-local", f.local.lastAuth)
	assert.Equal(t, "key-1", f.local.lastKey)

	state, err := f.router.Session()
	require.NoError(t, err)
	assert.Equal(t, SessionState{LoggedIn: true, HasAPIKey: true}, state)
}

func TestLogoutClearsSession(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.store.Save(session.Session{Token: "t", APIKey: "k"}))

	require.NoError(t, f.router.Logout())

	assert.Empty(t, f.router.HeadersFor())
}

func TestAskUnauthorizedClearsSession(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.store.Save(session.Session{Token: "old"}))

	got := f.router.Ask(context.Background(), ask.Request{Message: "expired"})

	assert.Equal(t, ask.ErrorAuth, got.ErrorKind)
	sess, _ := f.store.Load()
	assert.True(t, sess.Anonymous())
}

func TestBackendUnauthorizedClearsSession(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.store.Save(session.Session{Token: "old"}))

	_, err := f.router.Model(context.Background())

	require.Error(t, err)
	sess, _ := f.store.Load()
	assert.True(t, sess.Anonymous())
}

func TestAskBinaryResultIsRevocable(t *testing.T) {
	f := newFixture(t, false)

	got := f.router.Ask(context.Background(), ask.Request{
		Message: "make a pdf",
		File:    &ask.Attachment{Name: "in.txt", Content: strings.NewReader("x")},
	})
	require.Equal(t, ask.KindBinary, got.Kind)
	assert.True(t, strings.HasPrefix(got.BlobURL, "/api/blobs/"))

	b, err := f.router.Blob(got.BlobURL)
	require.NoError(t, err)
	assert.Equal(t, "answer.pdf", b.Filename)

	f.router.RevokeBlob(got.BlobURL)
	_, err = f.router.Blob(got.BlobURL)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestAskPublishesActivity(t *testing.T) {
	f := newFixture(t, false)
	events, cancel := f.router.Activity().Subscribe()
	defer cancel()

	f.router.Ask(context.Background(), ask.Request{Message: "expired"})

	next := func() activity.Event {
		select {
		case ev := <-events:
			return ev
		case <-time.After(time.Second):
			t.Fatal("no activity event")
			return activity.Event{}
		}
	}
	pending, final := next(), next()
	assert.Equal(t, activity.KindPending, pending.Kind)
	assert.Equal(t, OpAsk, pending.Operation)
	assert.Equal(t, activity.KindError, final.Kind)
	assert.Equal(t, pending.ID, final.ID)
	assert.Equal(t, "unauthorized", final.Message)
}

func TestFeedbackTransportFailure(t *testing.T) {
	r := New(Options{Origin: "http://127.0.0.1:1"})

	err := r.SendFeedback(context.Background(), account.NewFeedback(account.VoteGood, "q", "a", ""))
	require.Error(t, err)
}

func TestDownloadSendsCredentialsOnlyToKnownBackends(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.Save(session.Session{Token: "secret-token", APIKey: "secret-key"}))

	var leaked []string
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		leaked = append(leaked, req.Header.Get("Authorization"), req.Header.Get("X-API-Key"))
	}))
	defer foreign.Close()

	_, err := f.router.Download(context.Background(), foreign.URL+"/steal")
	assert.ErrorIs(t, err, backend.ErrInvalidRequest)
	assert.Empty(t, leaked)

	file, err := f.router.Download(context.Background(), f.devlab.URL+"/answers/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "devlab:a.txt", string(file.Data))
}

// slowStore widens the gap between reading and writing the session.
type slowStore struct {
	*session.MemoryStore
}

func (s slowStore) Load() (session.Session, error) {
	sess, err := s.MemoryStore.Load()
	time.Sleep(20 * time.Millisecond)
	return sess, err
}

func TestConcurrentSessionUpdatesAreKept(t *testing.T) {
	local := &backendStub{}
	srv := httptest.NewServer(local.handler("local"))
	defer srv.Close()

	store := session.NewMemoryStore(session.Session{})
	r := New(Options{Origin: srv.URL, Store: slowStore{store}})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, r.Login(context.Background(), "eva", "pw"))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, r.SetAPIKey("key-1"))
	}()
	wg.Wait()

	sess, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, session.Session{Token: "tok-local", APIKey: "key-1"}, sess)
}
