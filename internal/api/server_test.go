package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"study-ai/internal/api"
	"study-ai/internal/models"
	"study-ai/internal/services"
)

func newTestServer() *api.Server {
	return api.NewServer(
		services.NewAIService("", "", ""),
		services.NewPDFService(services.DefaultPageLimit),
		services.NewStudySetService(nil),
		services.NewUserService(nil, "test-secret"),
		services.NewReviewService(nil),
	)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, tweak func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tweak != nil {
		tweak(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) api.SessionView {
	t.Helper()
	var view api.SessionView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode session view: %v", err)
	}
	return view
}

func testCards() []models.Flashcard {
	return []models.Flashcard{
		{Question: "What is the capital of France?", Answer: "Paris"},
		{Question: "What is the capital of Italy?", Answer: "Rome"},
		{Question: "What is the capital of Spain?", Answer: "Madrid"},
		{Question: "What is the capital of Germany?", Answer: "Berlin"},
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer().Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuestQuota(t *testing.T) {
	h := newTestServer().Handler()
	payload := map[string]string{"text": "x"}

	// First anonymous POST passes the gate (and fails later on the short
	// text, which is fine: the gate ran first and stamped the cookie).
	rec := doJSON(t, h, http.MethodPost, "/api/process", payload, nil)
	if rec.Code == http.StatusForbidden {
		t.Fatalf("first anonymous request must pass the gate, got %d", rec.Code)
	}

	var guest *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "guest_used" {
			guest = c
		}
	}
	if guest == nil || guest.Value != "1" {
		t.Fatal("first anonymous request must set guest_used=1")
	}

	// Second anonymous POST carries the cookie and is refused.
	rec = doJSON(t, h, http.MethodPost, "/api/process", payload, func(r *http.Request) {
		r.AddCookie(guest)
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var errBody struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody.Code != "GUEST_LIMIT" {
		t.Fatalf("code = %q, want GUEST_LIMIT", errBody.Code)
	}

	// A bearer credential bypasses the gate even with the cookie present.
	rec = doJSON(t, h, http.MethodPost, "/api/process", payload, func(r *http.Request) {
		r.AddCookie(guest)
		r.Header.Set("Authorization", "Bearer some-token")
	})
	if rec.Code == http.StatusForbidden {
		t.Fatalf("bearer request must bypass the gate, got %d", rec.Code)
	}
}

func TestRequireUserRejectsAnonymous(t *testing.T) {
	h := newTestServer().Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/sets", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var errBody struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody.Code != "NOT_AUTHENTICATED" {
		t.Fatalf("code = %q, want NOT_AUTHENTICATED", errBody.Code)
	}
}

func TestProcessRejectsShortText(t *testing.T) {
	h := newTestServer().Handler()
	rec := doJSON(t, h, http.MethodPost, "/api/process", map[string]string{"text": "abc"}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer some-token")
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Provide more text.") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func doMultipart(t *testing.T, h http.Handler, path, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTranscribeRejectsMissingAudio(t *testing.T) {
	h := newTestServer().Handler()
	rec := doMultipart(t, h, "/api/transcribe", "", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTranscribeWithoutUpstream(t *testing.T) {
	// The test server has no API key, so the clip reaches the service and
	// comes back as an upstream availability error, not a client error.
	h := newTestServer().Handler()
	rec := doMultipart(t, h, "/api/transcribe", "audio", "clip.webm", []byte("not really audio"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", rec.Code, rec.Body.String())
	}
}

func TestQuizSessionFlow(t *testing.T) {
	h := newTestServer().Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/quiz/sessions", map[string]any{
		"flashcards": testCards(),
		"seed":       7,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	view := decodeView(t, rec)
	if view.Total != 4 {
		t.Fatalf("total = %d, want 4", view.Total)
	}
	for _, q := range view.Questions {
		if q.CorrectIndex != -1 {
			t.Fatal("correctness must be withheld before grading")
		}
	}

	// The correct option for each question is its card's answer text.
	answers := map[string]string{}
	for _, c := range testCards() {
		answers[c.Question] = c.Answer
	}

	base := "/api/quiz/sessions/" + view.ID
	for _, q := range view.Questions {
		var optionID string
		for _, o := range q.Options {
			if o.Text == answers[q.Prompt] {
				optionID = o.ID
			}
		}
		if optionID == "" {
			t.Fatalf("question %q has no option matching its answer", q.Prompt)
		}
		rec = doJSON(t, h, http.MethodPost, base+"/choose", map[string]string{
			"questionId": q.ID,
			"optionId":   optionID,
		}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("choose status = %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec = doJSON(t, h, http.MethodPost, base+"/grade", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("grade status = %d: %s", rec.Code, rec.Body.String())
	}
	graded := decodeView(t, rec)
	if !graded.Graded {
		t.Fatal("view must be graded")
	}
	if graded.Score != graded.Total {
		t.Fatalf("score = %d, want %d", graded.Score, graded.Total)
	}
	for _, q := range graded.Questions {
		if q.CorrectIndex < 0 {
			t.Fatal("graded view must reveal correct indexes")
		}
	}

	rec = doJSON(t, h, http.MethodPost, base+"/restart", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restart status = %d: %s", rec.Code, rec.Body.String())
	}
	restarted := decodeView(t, rec)
	if restarted.Graded || len(restarted.Selected) != 0 {
		t.Fatalf("restart must clear state: %+v", restarted)
	}

	rec = doJSON(t, h, http.MethodDelete, base, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, base, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestGradeIncompleteSessionConflicts(t *testing.T) {
	h := newTestServer().Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/quiz/sessions", map[string]any{
		"flashcards": testCards(),
		"seed":       9,
	}, nil)
	view := decodeView(t, rec)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/quiz/sessions/%s/grade", view.ID), nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	h := newTestServer().Handler()
	rec := doJSON(t, h, http.MethodPost, "/api/quiz/sessions/nope/grade", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
