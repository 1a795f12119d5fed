package api

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/tlindqvist/syncbox/internal/auth"
	"github.com/tlindqvist/syncbox/internal/fileservice"
	"github.com/tlindqvist/syncbox/internal/metastore"
	"github.com/tlindqvist/syncbox/internal/noteservice"
	"github.com/tlindqvist/syncbox/internal/storage"
	"github.com/tlindqvist/syncbox/internal/syncservice"
)

type testEnv struct {
	router http.Handler
	signer ssh.Signer
	pubKey string
}

// newTestEnv sets up temp roots, a SQLite store, all services, one
// authorized keypair, and the router. authEnabled=false disables token
// enforcement.
func newTestEnv(t *testing.T, authEnabled bool) *testEnv {
	t.Helper()

	filesStore, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS files: %v", err)
	}
	notesStore, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS notes: %v", err)
	}

	dbFile, err := os.CreateTemp("", "syncbox-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	meta, err := metastore.Open(dbFile.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	pubLine := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))

	keysPath := filepath.Join(t.TempDir(), "authorized_keys")
	if err := os.WriteFile(keysPath, []byte(pubLine+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	mgr := auth.NewManager(meta, keysPath, time.Hour, 5*time.Minute)
	if err := mgr.LoadAuthorizedKeys(); err != nil {
		t.Fatal(err)
	}

	files := fileservice.NewService(filesStore, meta)
	notes := noteservice.NewService(notesStore, meta)
	syncSvc := syncservice.NewService(meta)

	return &testEnv{
		router: NewRouter(files, notes, syncSvc, mgr, authEnabled),
		signer: signer,
		pubKey: pubLine,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// handshake runs the full challenge/verify exchange and returns a token.
func (e *testEnv) handshake(t *testing.T) string {
	t.Helper()

	body, _ := json.Marshal(ChallengeRequest{PublicKey: e.pubKey})
	w := e.do(t, httptest.NewRequest(http.MethodPost, "/auth/challenge", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("challenge status = %d, body = %s", w.Code, w.Body.String())
	}
	var ch auth.Challenge
	_ = json.Unmarshal(w.Body.Bytes(), &ch)

	sig, err := e.signer.Sign(rand.Reader, []byte(ch.Challenge))
	if err != nil {
		t.Fatal(err)
	}
	body, _ = json.Marshal(VerifyRequest{
		Challenge: ch.Challenge,
		PublicKey: e.pubKey,
		Signature: base64.StdEncoding.EncodeToString(ssh.Marshal(sig)),
	})
	w = e.do(t, httptest.NewRequest(http.MethodPost, "/auth/verify", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body = %s", w.Code, w.Body.String())
	}
	var tok auth.Token
	_ = json.Unmarshal(w.Body.Bytes(), &tok)
	if tok.Token == "" {
		t.Fatal("empty token")
	}
	return tok.Token
}

func TestHandshakeIssuesUsableToken(t *testing.T) {
	env := newTestEnv(t, true)
	token := env.handshake(t)

	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list status = %d", w.Code)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	env := newTestEnv(t, true)

	for _, path := range []string{"/files", "/notes", "/sync/state"} {
		w := env.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	w := env.do(t, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bogus token = %d, want 401", w.Code)
	}
}

func TestChallengeUnauthorizedKey(t *testing.T) {
	env := newTestEnv(t, true)

	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	sshPub, _ := ssh.NewPublicKey(priv.Public().(ed25519.PublicKey))
	stranger := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))

	body, _ := json.Marshal(ChallengeRequest{PublicKey: stranger})
	w := env.do(t, httptest.NewRequest(http.MethodPost, "/auth/challenge", bytes.NewReader(body)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestFileRoundTrip(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, httptest.NewRequest(http.MethodPut, "/files/docs/a.txt", strings.NewReader("hello")))
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}
	var m metastore.FileMeta
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m.Path != "docs/a.txt" || m.Size != 5 {
		t.Errorf("meta = %+v", m)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/files/docs/a.txt", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if w.Body.String() != "hello" {
		t.Errorf("content = %q", w.Body.String())
	}
	if w.Header().Get("X-File-Hash") == "" {
		t.Error("missing X-File-Hash header")
	}
}

func TestFilePutClientMtime(t *testing.T) {
	env := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodPut, "/files/stamped.txt", strings.NewReader("x"))
	req.Header.Set("X-Client-Mtime", "1615714013000")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d", w.Code)
	}
	var m metastore.FileMeta
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m.Mtime != 1615714013000 {
		t.Errorf("mtime = %d", m.Mtime)
	}

	req = httptest.NewRequest(http.MethodPut, "/files/bad.txt", strings.NewReader("x"))
	req.Header.Set("X-Client-Mtime", "not-a-number")
	if w := env.do(t, req); w.Code != http.StatusBadRequest {
		t.Errorf("bad mtime header = %d, want 400", w.Code)
	}
}

func TestFileDeletePropagatesThroughSync(t *testing.T) {
	env := newTestEnv(t, false)

	env.do(t, httptest.NewRequest(http.MethodPut, "/files/gone.txt", strings.NewReader("bye")))
	w := env.do(t, httptest.NewRequest(http.MethodDelete, "/files/gone.txt", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/files/gone.txt", nil)); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/sync/state", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d", w.Code)
	}
	var st syncservice.State
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if len(st.Files) != 1 || !st.Files[0].IsDeleted {
		t.Errorf("sync state = %+v, want one tombstone", st.Files)
	}
}

func TestSyncStateSinceCursor(t *testing.T) {
	env := newTestEnv(t, false)

	env.do(t, httptest.NewRequest(http.MethodPut, "/files/a.txt", strings.NewReader("a")))

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/sync/state", nil))
	var st syncservice.State
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if len(st.Files) != 1 {
		t.Fatalf("full state = %+v", st.Files)
	}

	// Nothing changed after the returned cursor.
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/sync/state?since="+jsonInt(st.ServerTime), nil))
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if len(st.Files) != 0 {
		t.Errorf("delta after cursor = %+v, want empty", st.Files)
	}

	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/sync/state?since=abc", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("bad since = %d, want 400", w.Code)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestNoteCRUD(t *testing.T) {
	env := newTestEnv(t, false)

	body, _ := json.Marshal(CreateNoteRequest{
		Title:   "Groceries",
		Tags:    []string{"shopping"},
		Content: "buy milk",
	})
	w := env.do(t, httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var note noteservice.NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.ID == "" {
		t.Fatal("empty note id")
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/notes/"+note.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	newTitle := "Shopping"
	upd, _ := json.Marshal(UpdateNoteRequest{Title: &newTitle})
	w = env.do(t, httptest.NewRequest(http.MethodPut, "/notes/"+note.ID, bytes.NewReader(upd)))
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated noteservice.NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Title != "Shopping" || updated.Content != "buy milk" {
		t.Errorf("updated = %+v", updated)
	}

	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/notes/"+note.ID, nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/notes/"+note.ID, nil)); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestNoteCreateRequiresTitle(t *testing.T) {
	env := newTestEnv(t, false)

	body, _ := json.Marshal(CreateNoteRequest{Content: "no title"})
	w := env.do(t, httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestNoteListFilterAndSearch(t *testing.T) {
	env := newTestEnv(t, false)

	for _, n := range []CreateNoteRequest{
		{Title: "Work log", Tags: []string{"work"}, Content: "standup notes"},
		{Title: "Recipes", Tags: []string{"home"}, Content: "pasta with garlic"},
	} {
		body, _ := json.Marshal(n)
		if w := env.do(t, httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))); w.Code != http.StatusCreated {
			t.Fatalf("create %q = %d", n.Title, w.Code)
		}
	}

	var listResp struct {
		Notes []noteservice.NoteListItem `json:"notes"`
		Total int                        `json:"total"`
	}

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/notes?tag=work", nil))
	_ = json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Total != 1 || listResp.Notes[0].Title != "Work log" {
		t.Errorf("tag filter = %+v", listResp)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/notes/search?q=garlic", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var searchResp struct {
		Results []noteservice.NoteListItem `json:"results"`
		Total   int                        `json:"total"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &searchResp)
	if searchResp.Total != 1 || searchResp.Results[0].Title != "Recipes" {
		t.Errorf("search = %+v", searchResp)
	}

	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/notes/search", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", w.Code)
	}
}

func TestNoteTags(t *testing.T) {
	env := newTestEnv(t, false)

	for _, n := range []CreateNoteRequest{
		{Title: "a", Tags: []string{"go", "db"}},
		{Title: "b", Tags: []string{"go"}},
	} {
		body, _ := json.Marshal(n)
		env.do(t, httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body)))
	}

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/notes/tags", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("tags status = %d", w.Code)
	}
	var resp struct {
		Tags []metastore.TagInfo `json:"tags"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Tags) != 2 || resp.Tags[0].Name != "go" || resp.Tags[0].Count != 2 {
		t.Errorf("tags = %+v", resp.Tags)
	}
}
