package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/flashstudy/internal/auth"
	"github.com/conorfennell/flashstudy/internal/backend"
	"github.com/conorfennell/flashstudy/internal/domain"
	"github.com/conorfennell/flashstudy/internal/metrics"
	"github.com/conorfennell/flashstudy/internal/storage"
	"github.com/conorfennell/flashstudy/internal/study"
	"github.com/conorfennell/flashstudy/internal/sync"
)

type stubGenerator struct {
	err error
}

func (g *stubGenerator) FromTopic(ctx context.Context, id, topic string) (*domain.Material, error) {
	return g.material(topic), g.err
}

func (g *stubGenerator) FromPDF(ctx context.Context, filename string, r io.Reader) (*domain.Material, error) {
	return g.material(strings.TrimSuffix(filename, ".pdf")), g.err
}

func (g *stubGenerator) material(topic string) *domain.Material {
	if g.err != nil {
		return nil
	}
	return &domain.Material{
		Topic:  topic,
		Points: []string{topic + " point one", topic + " point two", topic + " point three"},
		Questions: []domain.GeneratedQuestion{
			{Question: "Is " + topic + " fun?", Options: []string{"Yes", "No"}, Answer: "Yes"},
			{Question: "Is " + topic + " hard?", Options: []string{"Yes", "No"}, Answer: "No"},
		},
	}
}

type testServer struct {
	*Server
	db  *storage.DB
	gen *stubGenerator
}

func newTestServer(t *testing.T, authURL string) *testServer {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("storage.Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gen := &stubGenerator{}
	m := metrics.New()
	svc := study.NewService(db, gen, m)
	authClient := auth.New(authURL, "anon", "", time.Second, db)
	syncer := sync.New(db, t.TempDir(), nil)
	return &testServer{Server: NewServer(db, svc, authClient, syncer, m), db: db, gen: gen}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func generate(t *testing.T, ts *testServer, topic string) *domain.Topic {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/generate/topic", GenerateTopicRequest{Topic: topic})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 from generate, got %d: %s", rec.Code, rec.Body.String())
	}
	var state study.UploadState
	decodeBody(t, rec, &state)
	if state.Status != study.StatusSuccess || state.Topic == nil {
		t.Fatalf("Expected success state, got %+v", state)
	}
	return state.Topic
}

func TestHealthAndCORS(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("Unexpected health response %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS header, got %q", got)
	}

	rec = ts.do(t, http.MethodOptions, "/topics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected preflight to succeed, got %d", rec.Code)
	}
}

func TestTopicRoutes(t *testing.T) {
	ts := newTestServer(t, "")
	tides := generate(t, ts, "Tides")
	generate(t, ts, "Astronomy")

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		check  func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{
			name: "list by name", method: http.MethodGet, path: "/topics", status: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var topics []domain.Topic
				decodeBody(t, rec, &topics)
				if len(topics) != 2 || topics[0].Name != "Astronomy" {
					t.Errorf("Unexpected topics %+v", topics)
				}
			},
		},
		{name: "bad sort", method: http.MethodGet, path: "/topics?sort=size", status: http.StatusBadRequest},
		{
			name: "grid", method: http.MethodGet, path: "/topics?view=grid", status: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var grid []domain.Subject
				decodeBody(t, rec, &grid)
				if len(grid) != 2 {
					t.Errorf("Unexpected grid %+v", grid)
				}
			},
		},
		{
			name: "search", method: http.MethodGet, path: "/topics/search?q=tid", status: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var topics []domain.Topic
				decodeBody(t, rec, &topics)
				if len(topics) != 1 || topics[0].ID != tides.ID {
					t.Errorf("Unexpected search result %+v", topics)
				}
			},
		},
		{name: "get", method: http.MethodGet, path: "/topics/" + tides.ID, status: http.StatusOK},
		{name: "get missing", method: http.MethodGet, path: "/topics/missing", status: http.StatusNotFound},
		{name: "rename empty", method: http.MethodPatch, path: "/topics/" + tides.ID, body: RenameTopicRequest{}, status: http.StatusBadRequest},
		{
			name: "rename", method: http.MethodPatch, path: "/topics/" + tides.ID, body: RenameTopicRequest{Name: "Ocean Tides"}, status: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var topic domain.Topic
				decodeBody(t, rec, &topic)
				if topic.Name != "Ocean Tides" {
					t.Errorf("Expected renamed topic, got %+v", topic)
				}
			},
		},
		{
			name: "deck clamps index", method: http.MethodGet, path: "/topics/" + tides.ID + "/cards?index=99", status: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var deck study.CardsState
				decodeBody(t, rec, &deck)
				if len(deck.Cards) != 3 || deck.Index != 2 {
					t.Errorf("Expected index clamped to 2, got %+v", deck)
				}
			},
		},
		{name: "deck bad index", method: http.MethodGet, path: "/topics/" + tides.ID + "/cards?index=x", status: http.StatusBadRequest},
		{
			name: "all cards alphabetical", method: http.MethodGet, path: "/cards?sort=alphabetical", status: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var cards []domain.Card
				decodeBody(t, rec, &cards)
				if len(cards) != 6 || !strings.HasPrefix(cards[0].Content, "Astronomy") {
					t.Errorf("Unexpected cards %+v", cards)
				}
			},
		},
		{name: "cards bad sort", method: http.MethodGet, path: "/cards?sort=random", status: http.StatusBadRequest},
		{name: "delete", method: http.MethodDelete, path: "/topics/" + tides.ID, status: http.StatusNoContent},
		{name: "delete again", method: http.MethodDelete, path: "/topics/" + tides.ID, status: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("Expected status %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.check != nil {
				tc.check(t, rec)
			}
		})
	}
}

func TestExamRoutes(t *testing.T) {
	ts := newTestServer(t, "")
	topic := generate(t, ts, "Tides")

	rec := ts.do(t, http.MethodGet, "/topics/"+topic.ID+"/score", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected no score yet, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/topics/"+topic.ID+"/questions", nil)
	var questions []domain.ExamQuestion
	decodeBody(t, rec, &questions)
	if len(questions) != 2 {
		t.Fatalf("Expected 2 questions, got %+v", questions)
	}

	rec = ts.do(t, http.MethodPost, "/topics/"+topic.ID+"/exam", SubmitExamRequest{Answers: map[int64]string{
		questions[0].ID: "Yes",
		questions[1].ID: "Yes",
	}})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from submit, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.ExamResult
	decodeBody(t, rec, &result)
	if result.Text != "Your score: 1 / 2" {
		t.Errorf("Unexpected result %+v", result)
	}

	rec = ts.do(t, http.MethodGet, "/topics/"+topic.ID+"/score", nil)
	var score ScoreResponse
	decodeBody(t, rec, &score)
	if score.Score != 1 {
		t.Errorf("Expected stored score 1, got %+v", score)
	}

	rec = ts.do(t, http.MethodPost, "/topics/"+topic.ID+"/exam", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from submitting no answers, got %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &result)
	if result.Text != "Your score: 0 / 2" {
		t.Errorf("Expected every question marked wrong, got %+v", result)
	}

	dupPath := "/questions/" + strconv.FormatInt(questions[1].ID, 10)
	rec = ts.do(t, http.MethodPut, dupPath, UpdateQuestionRequest{Question: questions[0].Question, Options: questions[0].Options, Answer: questions[0].Answer})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 when an update duplicates another question, got %d: %s", rec.Code, rec.Body.String())
	}

	qPath := "/questions/" + strconv.FormatInt(questions[0].ID, 10)
	rec = ts.do(t, http.MethodPut, qPath, UpdateQuestionRequest{Question: "Fun?", Options: []string{"A", "B"}, Answer: "C"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an answer outside the options, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPut, qPath, UpdateQuestionRequest{Question: "Fun?", Options: []string{"A", "B"}, Answer: "B"})
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from update, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec = ts.do(t, http.MethodDelete, qPath, nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 from delete, got %d", rec.Code)
	}
	if rec = ts.do(t, http.MethodGet, qPath, nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}

	if rec = ts.do(t, http.MethodDelete, "/topics/"+topic.ID+"/questions", nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 from deleting questions, got %d", rec.Code)
	}
}

func TestGenerateRoutes(t *testing.T) {
	ts := newTestServer(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "biology.pdf")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("%PDF-1.4"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/generate/pdf", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 from pdf upload, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/generate/pdf", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a file, got %d", rec.Code)
	}

	ts.gen.err = fmt.Errorf("notes.pdf (text/plain): %w", backend.ErrNotPDF)
	buf.Reset()
	mw = multipart.NewWriter(&buf)
	part, _ = mw.CreateFormFile("file", "notes.pdf")
	part.Write([]byte("plain text"))
	mw.Close()
	req = httptest.NewRequest(http.MethodPost, "/generate/pdf", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for content that is not a PDF, got %d: %s", rec.Code, rec.Body.String())
	}
	ts.do(t, http.MethodDelete, "/generate/state", nil)

	ts.gen.err = &backend.StatusError{Code: http.StatusBadRequest, Body: "too vague"}
	rec = ts.do(t, http.MethodPost, "/generate/topic", GenerateTopicRequest{Topic: "stuff"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502 from a failed generation, got %d", rec.Code)
	}
	var state study.UploadState
	decodeBody(t, rec, &state)
	if state.Message != "Invalid request: too vague" {
		t.Errorf("Unexpected state %+v", state)
	}

	rec = ts.do(t, http.MethodGet, "/generate/state", nil)
	decodeBody(t, rec, &state)
	if state.Status != study.StatusError {
		t.Errorf("Expected stored error state, got %+v", state)
	}
	rec = ts.do(t, http.MethodDelete, "/generate/state", nil)
	decodeBody(t, rec, &state)
	if state.Status != study.StatusIdle {
		t.Errorf("Expected idle after reset, got %+v", state)
	}

	rec = ts.do(t, http.MethodPost, "/generate/topic", GenerateTopicRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty topic, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), `flashstudy_generations_total{outcome="error",source="topic"} 1`) {
		t.Errorf("Expected generation metrics, got:\n%s", rec.Body.String())
	}
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	ts := newTestServer(t, "")

	testCases := []struct {
		path string
		want string
	}{
		{path: "/topics", want: "[]"},
		{path: "/topics?view=grid", want: "[]"},
		{path: "/topics/search?q=none", want: "[]"},
		{path: "/cards", want: "[]"},
		{path: "/sources", want: "[]"},
		{path: "/home", want: `"topics":[]`},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tc.path, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Errorf("Expected body to contain %s, got %s", tc.want, rec.Body.String())
			}
			if strings.Contains(rec.Body.String(), "null") {
				t.Errorf("Expected no null lists, got %s", rec.Body.String())
			}
		})
	}
}

func TestImport(t *testing.T) {
	ts := newTestServer(t, "")
	dir := t.TempDir()
	deck := "# Rivers\n\nQ: Longest river?\nA: Nile\n\nQ: River through Paris?\nO: Seine\nO: Thames\nA: Seine\n"
	if err := os.WriteFile(filepath.Join(dir, "rivers.md"), []byte(deck), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodPost, "/import", ImportRequest{Path: dir})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from import, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ImportResponse
	decodeBody(t, rec, &resp)
	if resp.Report.Cards != 1 || resp.Report.Questions != 1 || len(resp.Sources) != 1 {
		t.Errorf("Unexpected import response %+v", resp)
	}

	rec = ts.do(t, http.MethodGet, "/topics/search?q=rivers", nil)
	var topics []domain.Topic
	decodeBody(t, rec, &topics)
	if len(topics) != 1 {
		t.Errorf("Expected imported topic to be searchable, got %+v", topics)
	}

	if rec = ts.do(t, http.MethodDelete, "/sources/"+strconv.FormatInt(resp.Sources[0].ID, 10), nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 from deleting the source, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/topics", nil)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("Expected the source's topic to be deleted with it, got %s", body)
	}
}

func TestAuthRoutes(t *testing.T) {
	gotrue := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access",
				"refresh_token": "refresh",
				"expires_at":    time.Now().Add(time.Hour).Unix(),
				"user":          map[string]string{"id": "user-1", "email": "ana@example.com"},
			})
		case "/auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, `{"msg":"not found"}`, http.StatusNotFound)
		}
	}))
	defer gotrue.Close()
	ts := newTestServer(t, gotrue.URL)

	rec := ts.do(t, http.MethodPost, "/auth/signup", SignUpRequest{Email: "ana@example.com", Password: "one", ConfirmPassword: "two"})
	var resp auth.Response
	decodeBody(t, rec, &resp)
	if rec.Code != http.StatusBadRequest || resp.Message != "Passwords do not match" {
		t.Errorf("Unexpected signup response %d %+v", rec.Code, resp)
	}

	rec = ts.do(t, http.MethodPost, "/auth/signin", SignInRequest{Email: "not-an-email", Password: "pw"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a malformed email, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/auth/signin", SignInRequest{Email: "ana@example.com", Password: "pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from signin, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/auth/session", nil)
	var session SessionResponse
	decodeBody(t, rec, &session)
	if !session.SignedIn || session.UserID != "user-1" {
		t.Errorf("Expected a signed-in session, got %+v", session)
	}

	rec = ts.do(t, http.MethodGet, "/auth/nonce", nil)
	var nonce auth.Nonce
	decodeBody(t, rec, &nonce)
	if nonce.Raw == "" || len(nonce.Hashed) != 64 {
		t.Errorf("Unexpected nonce %+v", nonce)
	}

	if rec = ts.do(t, http.MethodPost, "/auth/logout", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from logout, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/auth/session", nil)
	session = SessionResponse{}
	decodeBody(t, rec, &session)
	if session.SignedIn {
		t.Errorf("Expected signed out after logout, got %+v", session)
	}
}

func TestAuthDisabled(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, http.MethodPost, "/auth/signin", SignInRequest{Email: "ana@example.com", Password: "pw"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without an auth service, got %d", rec.Code)
	}
}
