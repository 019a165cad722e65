package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"study-ai/internal/markdown"
	"study-ai/internal/models"
	"study-ai/internal/services"
)

const (
	maxMultipartMemory = 8 << 20 // 8 MB
	minSourceChars     = 10
)

type Server struct {
	mux      *http.ServeMux
	ai       *services.AIService
	pdf      *services.PDFService
	sets     *services.StudySetService
	users    *services.UserService
	review   *services.ReviewService
	sessions *SessionManager
}

func NewServer(
	ai *services.AIService,
	pdf *services.PDFService,
	sets *services.StudySetService,
	users *services.UserService,
	review *services.ReviewService,
) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		ai:       ai,
		pdf:      pdf,
		sets:     sets,
		users:    users,
		review:   review,
		sessions: NewSessionManager(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/extract", s.handleExtract)
	s.mux.HandleFunc("/api/transcribe", s.handleTranscribe)
	s.mux.HandleFunc("/api/process", s.guestQuota(s.handleProcess))
	s.mux.HandleFunc("/api/summarize", s.handleSummarize)
	s.mux.HandleFunc("/api/quiz", s.guestQuota(s.handleGenerateQuiz))
	s.mux.HandleFunc("/api/ask", s.handleAsk)
	s.mux.HandleFunc("/api/quiz/sessions", s.handleCreateSession)
	s.mux.HandleFunc("/api/quiz/sessions/", s.handleSessionActions)
	s.mux.HandleFunc("/api/sets", s.requireUser(s.handleListSets))
	s.mux.HandleFunc("/api/sets/flashcards", s.requireUser(s.handleSaveFlashcards))
	s.mux.HandleFunc("/api/sets/quiz", s.requireUser(s.handleSaveQuiz))
	s.mux.HandleFunc("/api/sets/", s.requireUser(s.handleSetActions))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	user, token, err := s.users.Register(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  map[string]string{"id": user.ID, "email": user.Email},
		"token": token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	user, token, err := s.users.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  map[string]string{"id": user.ID, "email": user.Email},
		"token": token,
	})
}

// handleExtract converts an uploaded PDF or TXT file to plain text for the
// client to feed into the generation endpoints.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	var text string
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".pdf":
		text, err = s.pdf.ExtractText(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("could not read pdf: %v", err))
			return
		}
	case ".txt", ".md", "":
		raw, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read file")
			return
		}
		text = strings.TrimSpace(string(raw))
	default:
		writeError(w, http.StatusBadRequest, "only PDF and TXT uploads are supported")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name": header.Filename,
		"text": text,
	})
}

// handleTranscribe turns an uploaded audio clip into text, the spoken-notes
// counterpart to handleExtract.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no audio uploaded")
		return
	}
	defer file.Close()

	text, err := s.ai.TranscribeAudio(r.Context(), file, header.Filename, r.FormValue("language"))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type processRequest struct {
	Text       string `json:"text"`
	Regenerate bool   `json:"regenerate"`
	Avoid      struct {
		Questions []string `json:"questions"`
		Answers   []string `json:"answers"`
	} `json:"avoid"`
	Nonce string `json:"nonce"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var payload processRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(strings.TrimSpace(payload.Text)) < minSourceChars {
		writeError(w, http.StatusBadRequest, "Provide more text.")
		return
	}

	pack, err := s.ai.GenerateStudyPack(r.Context(), payload.Text, services.PackOptions{
		Regenerate:     payload.Regenerate,
		AvoidQuestions: payload.Avoid.Questions,
		AvoidAnswers:   payload.Avoid.Answers,
		Nonce:          payload.Nonce,
	})
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pack)
}

type summarizeRequest struct {
	Text  string `json:"text"`
	Topic string `json:"topic"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(strings.TrimSpace(payload.Text)) < minSourceChars {
		writeError(w, http.StatusBadRequest, "Provide more text.")
		return
	}

	md, err := s.ai.Summarize(r.Context(), payload.Text, payload.Topic)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"markdown": md,
		"html":     markdown.RenderSource(md),
	})
}

type quizRequest struct {
	Text string `json:"text"`
	N    int    `json:"n"`
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var payload quizRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(strings.TrimSpace(payload.Text)) < minSourceChars {
		writeError(w, http.StatusBadRequest, "Provide more text.")
		return
	}
	if payload.N == 0 {
		payload.N = 12
	}

	questions, err := s.ai.GenerateQuiz(r.Context(), payload.Text, payload.N)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

type askRequest struct {
	Prompt  string                `json:"prompt"`
	Context services.TutorContext `json:"context"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload askRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(payload.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "Missing prompt")
		return
	}

	md, err := s.ai.Tutor(r.Context(), payload.Prompt, payload.Context)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"markdown": md,
		"html":     markdown.RenderSource(md),
	})
}

type createSessionRequest struct {
	Flashcards []models.Flashcard `json:"flashcards"`
	Count      int                `json:"count"`
	Seed       int64              `json:"seed"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	// An empty flashcard list is a valid, empty quiz: the client shows
	// "not enough flashcards" rather than receiving an error.
	_, view := s.sessions.Create(payload.Flashcards, payload.Count, payload.Seed)
	writeJSON(w, http.StatusCreated, view)
}

type chooseRequest struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

type regenerateRequest struct {
	Flashcards []models.Flashcard `json:"flashcards"`
}

func (s *Server) handleSessionActions(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/quiz/sessions/"), "/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			view, err := s.sessions.Get(sessionID)
			if err != nil {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			writeJSON(w, http.StatusOK, view)
		case http.MethodDelete:
			s.sessions.Delete(sessionID)
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
		return
	}

	if len(parts) != 2 || r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var (
		view SessionView
		err  error
	)
	switch parts[1] {
	case "choose":
		var payload chooseRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		view, err = s.sessions.Choose(sessionID, payload.QuestionID, payload.OptionID)
	case "grade":
		view, err = s.sessions.Grade(sessionID)
	case "restart":
		view, err = s.sessions.Restart(sessionID)
	case "regenerate":
		var payload regenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		view, err = s.sessions.Regenerate(sessionID, payload.Flashcards)
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, errSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type saveFlashcardsRequest struct {
	Title string             `json:"title"`
	Cards []models.Flashcard `json:"cards"`
}

func (s *Server) handleSaveFlashcards(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload saveFlashcardsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	id, err := s.sets.SaveFlashcards(r.Context(), userID, payload.Title, payload.Cards)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type saveQuizRequest struct {
	Title     string       `json:"title"`
	Questions []models.MCQ `json:"questions"`
}

func (s *Server) handleSaveQuiz(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload saveQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	id, err := s.sets.SaveQuiz(r.Context(), userID, payload.Title, payload.Questions)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListSets(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	sets, err := s.sets.ListSets(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sets": sets})
}

func (s *Server) handleSetActions(w http.ResponseWriter, r *http.Request, userID string) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sets/"), "/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	setID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetSet(w, r, userID, setID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleDeleteSet(w, r, userID, setID)
	case len(parts) == 3 && parts[1] == "review" && parts[2] == "next" && r.Method == http.MethodGet:
		s.handleReviewNext(w, r, userID, setID)
	case len(parts) == 2 && parts[1] == "review" && r.Method == http.MethodPost:
		s.handleReviewCard(w, r, userID, setID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetSet(w http.ResponseWriter, r *http.Request, userID, setID string) {
	set, err := s.sets.GetSetWithItems(r.Context(), userID, setID)
	if err != nil {
		if errors.Is(err, services.ErrSetNotFound) {
			writeError(w, http.StatusNotFound, "set not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleDeleteSet(w http.ResponseWriter, r *http.Request, userID, setID string) {
	if err := s.sets.DeleteSet(r.Context(), userID, setID); err != nil {
		if errors.Is(err, services.ErrSetNotFound) {
			writeError(w, http.StatusNotFound, "set not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleReviewNext(w http.ResponseWriter, r *http.Request, userID, setID string) {
	if _, err := s.sets.GetSet(r.Context(), userID, setID); err != nil {
		writeError(w, http.StatusNotFound, "set not found")
		return
	}

	item, err := s.review.NextCard(r.Context(), setID)
	if err != nil {
		if errors.Is(err, services.ErrNoDueCards) {
			writeJSON(w, http.StatusOK, map[string]any{
				"card":    nil,
				"message": "No cards due. Come back later!",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"card": reviewCardJSON(item)})
}

type reviewRequest struct {
	ItemID int64  `json:"itemId"`
	Rating string `json:"rating"`
}

func (s *Server) handleReviewCard(w http.ResponseWriter, r *http.Request, userID, setID string) {
	if _, err := s.sets.GetSet(r.Context(), userID, setID); err != nil {
		writeError(w, http.StatusNotFound, "set not found")
		return
	}

	var payload reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	rating, err := parseRating(payload.Rating)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, logEntry, err := s.review.ReviewCard(r.Context(), setID, payload.ItemID, rating)
	if err != nil {
		if errors.Is(err, services.ErrCardNotFound) {
			writeError(w, http.StatusNotFound, "card not in set")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_ = s.sets.Touch(r.Context(), setID)

	writeJSON(w, http.StatusOK, map[string]any{
		"card": reviewCardJSON(item),
		"log": map[string]any{
			"rating":   logEntry.Rating,
			"due_in":   logEntry.ScheduledDays,
			"reviewed": logEntry.ReviewedAt.Format(timeLayout),
		},
	})
}

func reviewCardJSON(item *models.FlashcardItem) map[string]any {
	var due *string
	if item.Due.Valid {
		str := item.Due.Time.Format(timeLayout)
		due = &str
	}
	return map[string]any{
		"id":        item.ID,
		"question":  item.Question,
		"answer":    item.Answer,
		"due":       due,
		"state":     item.State,
		"stability": item.Stability,
	}
}

const timeLayout = time.RFC3339

func parseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again":
		return fsrs.Again, nil
	case "hard":
		return fsrs.Hard, nil
	case "good":
		return fsrs.Good, nil
	case "easy":
		return fsrs.Easy, nil
	default:
		return 0, fmt.Errorf("unknown rating %q", raw)
	}
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAIUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, services.ErrBadModelOutput):
		writeError(w, http.StatusBadGateway, "Bad model output.")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeErrorCode(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
