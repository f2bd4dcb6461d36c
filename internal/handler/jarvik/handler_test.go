package jarvik

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/jarvik/webclient/internal/model/session"
	"github.com/zhouzirui/jarvik/webclient/internal/service/router"
)

type upstream struct {
	body  map[string]any
	form  map[string]string
	query string
}

func (u *upstream) routes() http.Handler {
	r := chi.NewRouter()
	reply := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
	record := func(req *http.Request) {
		u.body = nil
		u.query = req.URL.RawQuery
		json.NewDecoder(req.Body).Decode(&u.body)
	}

	r.Get("/model", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, `{"model":"command-r","status":"running"}`)
	})
	r.Post("/model", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		reply(w, http.StatusOK, `{"status":"restarting","model":"openchat"}`)
	})
	r.Post("/feedback", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		reply(w, http.StatusOK, `{}`)
	})
	r.Get("/knowledge/topics", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, `{"b":{},"a":{}}`)
	})
	r.Post("/knowledge/upload", func(w http.ResponseWriter, req *http.Request) {
		req.ParseMultipartForm(1 << 20)
		u.form = map[string]string{}
		for k, v := range req.MultipartForm.Value {
			u.form[k] = v[0]
		}
		_, header, _ := req.FormFile("file")
		reply(w, http.StatusOK, `{"status":"saved","file":"`+header.Filename+`"}`)
	})
	r.Get("/knowledge/pending", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusUnauthorized, `{"error":"admin only"}`)
	})
	r.Post("/knowledge/approve", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		reply(w, http.StatusOK, `{}`)
	})
	r.Post("/knowledge/reject", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		reply(w, http.StatusOK, `{}`)
	})
	r.Get("/knowledge/search", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		reply(w, http.StatusOK, `["chunk"]`)
	})
	r.Post("/knowledge/reload", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, `{"status":"reloaded","chunks":7}`)
	})
	r.Post("/memory/add", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		reply(w, http.StatusOK, `{"status":"ok"}`)
	})
	r.Post("/memory/delete", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		reply(w, http.StatusOK, `{"message":"Deleted 1 entries"}`)
	})
	r.Get("/memory/search", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		reply(w, http.StatusOK, `[{"user":"q","jarvik":"a"}]`)
	})
	r.Get("/answers/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("answer text"))
	})
	return r
}

func setupRouter(t *testing.T) (*chi.Mux, *upstream, *session.MemoryStore) {
	t.Helper()
	up := &upstream{}
	srv := httptest.NewServer(up.routes())
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore(session.Session{Token: "tok"})
	svc := router.New(router.Options{Origin: srv.URL, Store: store})

	r := chi.NewRouter()
	New(svc, nil, nil).RegisterRoutes(r)
	return r, up, store
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestModels(t *testing.T) {
	r, up, _ := setupRouter(t)

	resp := do(r, http.MethodGet, "/model", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var view map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	assert.Equal(t, "command-r", view["model"])
	assert.NotNil(t, view["info"])

	resp = do(r, http.MethodPost, "/model", `{"model":"openchat"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, map[string]any{"model": "openchat"}, up.body)

	resp = do(r, http.MethodPost, "/model", `{"model":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(r, http.MethodGet, "/models", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.NotEmpty(t, list)
}

func TestFeedback(t *testing.T) {
	r, up, _ := setupRouter(t)

	resp := do(r, http.MethodPost, "/feedback", `{"vote":"bad","question":"q","answer":"a","correction":"c"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, map[string]any{"agree": false, "vote": "bad", "question": "q", "answer": "a", "correction": "c"}, up.body)

	resp = do(r, http.MethodPost, "/feedback", `{"vote":"meh"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestKnowledge(t *testing.T) {
	r, up, _ := setupRouter(t)

	resp := do(r, http.MethodGet, "/knowledge/topics", "")
	assert.JSONEq(t, `["a","b"]`, resp.Body.String())

	resp = do(r, http.MethodPost, "/knowledge/approve", `{"file":"ai/x.txt"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"approved","file":"ai/x.txt"}`, resp.Body.String())
	assert.Equal(t, map[string]any{"file": "ai/x.txt"}, up.body)

	resp = do(r, http.MethodPost, "/knowledge/reject", `{"file":"ai/y.txt"}`)
	assert.JSONEq(t, `{"status":"rejected","file":"ai/y.txt"}`, resp.Body.String())

	resp = do(r, http.MethodGet, "/knowledge/search?q=go&topics=a,b&threshold=0.5", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `["chunk"]`, resp.Body.String())
	assert.Equal(t, "q=go&threshold=0.5&topics=a%2Cb", up.query)

	resp = do(r, http.MethodGet, "/knowledge/search?q=go&threshold=high", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(r, http.MethodPost, "/knowledge/reload", "")
	assert.JSONEq(t, `{"status":"reloaded","chunks":7}`, resp.Body.String())
}

func TestPendingUnauthorizedDropsSession(t *testing.T) {
	r, _, store := setupRouter(t)

	resp := do(r, http.MethodGet, "/knowledge/pending", "")

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.JSONEq(t, `{"error":"admin only"}`, resp.Body.String())
	sess, _ := store.Load()
	assert.True(t, sess.Anonymous())
}

func TestUpload(t *testing.T) {
	r, up, _ := setupRouter(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, _ := w.CreateFormFile("file", "doc.txt")
	part.Write([]byte("content"))
	w.WriteField("private", "1")
	w.WriteField("topic", "ai")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/knowledge/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"saved","file":"doc.txt"}`, resp.Body.String())
	assert.Equal(t, "1", up.form["private"])
	assert.Equal(t, "ai", up.form["topic"])
}

func TestMemory(t *testing.T) {
	r, up, _ := setupRouter(t)

	resp := do(r, http.MethodPost, "/memory/delete", `{"from":"2024-01-01","to":"2024-02-01"}`)
	assert.JSONEq(t, `{"message":"Deleted 1 entries"}`, resp.Body.String())
	assert.Equal(t, map[string]any{"from": "2024-01-01", "to": "2024-02-01"}, up.body)

	resp = do(r, http.MethodGet, "/memory/search?q=pizza", "")
	assert.JSONEq(t, `[{"user":"q","jarvik":"a"}]`, resp.Body.String())
	assert.Equal(t, "q=pizza", up.query)

	resp = do(r, http.MethodPost, "/memory/add", `{"user":"q","jarvik":"a","private":true}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
	assert.Equal(t, map[string]any{"user": "q", "jarvik": "a", "private": true}, up.body)

	resp = do(r, http.MethodPost, "/memory/add", `{"user":"q"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDownload(t *testing.T) {
	r, _, _ := setupRouter(t)

	resp := do(r, http.MethodGet, "/download?url=/answers/a.txt", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "answer text", resp.Body.String())
	assert.Equal(t, `attachment; filename="a.txt"`, resp.Header().Get("Content-Disposition"))

	resp = do(r, http.MethodGet, "/download", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(r, http.MethodGet, "/download?url=https://files.example.com/a.txt", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
