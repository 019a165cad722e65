package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"study-ai/internal/models"
)

var (
	// ErrAIUnavailable is returned when the OpenAI integration is not configured.
	ErrAIUnavailable = errors.New("openai integration is not configured")
	// ErrBadModelOutput is returned when the model response cannot be coerced
	// into the expected shape.
	ErrBadModelOutput = errors.New("bad model output")
)

const (
	minQuizQuestions = 6
	maxQuizQuestions = 20
	minSummaryItems  = 8
	maxSummaryItems  = 18
	// maxSummaryExpanded bounds the summary after the expansion pass tops
	// a short one up.
	maxSummaryExpanded = 24
	maxFlashcards    = 24
	maxKeyTerms      = 20
	maxAnalogies     = 5
	maxPitfalls      = 6
	maxPractice      = 5

	maxSourceChars  = 200000
	maxContextChars = 12000
)

type AIService struct {
	client *openai.Client
	model  string
}

func NewAIService(apiKey, model, apiEndpoint string) *AIService {
	if apiKey == "" {
		return &AIService{}
	}
	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}
	return &AIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (s *AIService) disabled() bool {
	return s.client == nil || s.model == ""
}

// TutorContext carries study-pack material into tutor prompts.
type TutorContext struct {
	Summary  []string `json:"summary"`
	KeyTerms []string `json:"keyTerms"`
	RawText  string   `json:"rawText"`
}

// PackOptions tunes study-pack generation. Regenerate requests fresh
// material at a higher temperature, steering the model away from the avoid
// lists; Nonce varies otherwise identical regeneration prompts.
type PackOptions struct {
	Regenerate     bool
	AvoidQuestions []string
	AvoidAnswers   []string
	Nonce          string
}

// GenerateStudyPack turns source text into a structured study pack. Malformed
// model output degrades to an empty pack rather than failing: the caller
// always gets something displayable, with a fallback summary line when even
// the summary came back unusable. A summary that parses but comes back short
// gets a second expansion pass to top it up.
func (s *AIService) GenerateStudyPack(ctx context.Context, text string, opts PackOptions) (*models.StudyPack, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	system := strings.Join([]string{
		"You are an expert study coach for undergrads.",
		"Anchor your understanding to the student's notes, but you MAY add concise outside knowledge to teach the topic better (definitions, context, examples, analogies, pitfalls).",
		"Return STRICT JSON ONLY (no code fences) with:",
		`{"summary": string[], "flashcards": {"q": string, "a": string}[], "keyTerms": string[], "analogies": string[], "pitfalls": string[], "practice": {"q": string, "a": string}[]}`,
		"Summary: 12-18 strong bullets. Flashcards: 10-16 short items. Key terms: 8-20. Analogies: 2-5. Pitfalls: 3-6. Practice: 3-5 short Q&A.",
		"Keep everything on-topic and concise.",
	}, "\n")

	temperature := float32(0.5)
	if opts.Regenerate {
		temperature = 0.8
	}

	content, err := s.complete(ctx, system, packUserPrompt(text, opts), temperature)
	if err != nil {
		return nil, fmt.Errorf("request study pack: %w", err)
	}

	pack := coercePack(content)
	clampPack(pack)
	if len(pack.Summary) < minSummaryItems {
		if extra, err := s.expandSummary(ctx, text, pack.Summary); err == nil {
			pack.Summary = clampStrings(append(pack.Summary, extra...), maxSummaryExpanded)
		} else {
			fmt.Fprintf(os.Stderr, "summary expansion failed: %v\n", err)
		}
	}
	if len(pack.Summary) == 0 {
		pack.Summary = []string{
			"The notes could not be summarized reliably. Try uploading a clearer section or shorter chunk.",
		}
	}
	return pack, nil
}

func packUserPrompt(text string, opts PackOptions) string {
	var b strings.Builder
	b.WriteString("STUDENT NOTES:\n")
	b.WriteString(truncate(text, maxSourceChars))
	if opts.Regenerate {
		b.WriteString("\n\nThis is a regeneration: produce fresh material that does not overlap the lists below.")
		if len(opts.AvoidQuestions) > 0 {
			b.WriteString("\nAVOID_QUESTIONS:\n" + strings.Join(opts.AvoidQuestions, "\n"))
		}
		if len(opts.AvoidAnswers) > 0 {
			b.WriteString("\nAVOID_ANSWERS:\n" + strings.Join(opts.AvoidAnswers, "\n"))
		}
		if opts.Nonce != "" {
			b.WriteString("\nVariation nonce: " + opts.Nonce)
		}
	}
	return b.String()
}

// expandSummary asks for extra summary bullets when the first pass came back
// short. Failures are the caller's to ignore: the pack is usable without the
// top-up.
func (s *AIService) expandSummary(ctx context.Context, text string, existing []string) ([]string, error) {
	system := strings.Join([]string{
		"You add missing summary bullets for study notes.",
		"Return STRICT JSON ONLY: an array of strings. No code fences, no prose.",
	}, "\n")
	user := fmt.Sprintf(
		"The summary below is too short. Write additional distinct bullets covering material it misses. Do not repeat existing bullets.\n\nEXISTING SUMMARY:\n%s\n\nSTUDENT NOTES:\n%s",
		strings.Join(existing, "\n"), truncate(text, maxSourceChars),
	)

	content, err := s.complete(ctx, system, user, 0.5)
	if err != nil {
		return nil, fmt.Errorf("request summary expansion: %w", err)
	}
	return coerceStrings(content), nil
}

// Summarize returns a Markdown summary of the material following a fixed
// section template.
func (s *AIService) Summarize(ctx context.Context, text, topic string) (string, error) {
	if s.disabled() {
		return "", ErrAIUnavailable
	}

	system := strings.Join([]string{
		"You are an academic summarizer and explainer. Output ONLY Markdown.",
		"Rules:",
		"- Do NOT ask questions.",
		"- Be comprehensive but concise where possible.",
		"- Use clear sections with headings.",
		"- If the topic is programming or contains code, include short, correct code examples in fenced blocks with language tags.",
		"- Use **bold** and *italics* correctly (no stray asterisks).",
		"Template (always follow): # Overview, ## Key Ideas, ## Step-by-Step, ## Examples, ## Common Pitfalls, ## Glossary, ## Further Reading.",
	}, "\n")

	if topic == "" {
		topic = "N/A"
	}
	user := fmt.Sprintf(
		"Summarize and explain the following material. Follow the template strictly and NEVER include questions.\n\nTopic hint: %s\n\nMaterial:\n\"\"\"\n%s\n\"\"\"",
		topic, truncate(text, maxSourceChars),
	)

	content, err := s.complete(ctx, system, user, 0.2)
	if err != nil {
		return "", fmt.Errorf("request summary: %w", err)
	}
	return content, nil
}

// GenerateQuiz asks the model for n multiple-choice questions anchored to the
// notes. n is clamped to 6-20. Questions that fail validation are dropped;
// an entirely unusable response is ErrBadModelOutput.
func (s *AIService) GenerateQuiz(ctx context.Context, text string, n int) ([]models.MCQ, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	if n < minQuizQuestions {
		n = minQuizQuestions
	}
	if n > maxQuizQuestions {
		n = maxQuizQuestions
	}

	system := strings.Join([]string{
		"You are a senior exam item writer.",
		"Write high-quality multiple-choice questions (MCQs) strictly anchored to the student's notes.",
		"Vary difficulty (recall to application). Avoid trivia and avoid 'All/None of the above'.",
		"Options must be plausible, mutually exclusive, and only one is correct.",
		"Return STRICT JSON ONLY (no code fences) with shape:",
		`{ "questions": [ { "prompt": string, "options": string[4], "correctIndex": number } ] }`,
		"Do not include explanations in the JSON.",
		"Generate brand-new questions on every call. Do not reuse any prior wording.",
	}, "\n")

	user := fmt.Sprintf("Create %d MCQs from these notes.\n\nNOTES:\n%s", n, truncate(text, maxSourceChars))

	content, err := s.complete(ctx, system, user, 0.4)
	if err != nil {
		return nil, fmt.Errorf("request quiz: %w", err)
	}

	var payload struct {
		Questions []models.MCQ `json:"questions"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		fmt.Fprintf(os.Stderr, "quiz response did not parse as JSON:\n%s\n", content)
		return nil, ErrBadModelOutput
	}

	cleaned := make([]models.MCQ, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		q.Prompt = strings.TrimSpace(q.Prompt)
		options := make([]string, 0, len(q.Options))
		for _, o := range q.Options {
			if o = strings.TrimSpace(o); o != "" {
				options = append(options, o)
			}
		}
		if len(options) > 6 {
			options = options[:6]
		}
		q.Options = options
		if q.Prompt == "" || len(q.Options) < 3 {
			continue
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			continue
		}
		cleaned = append(cleaned, q)
	}
	if len(cleaned) == 0 {
		return nil, ErrBadModelOutput
	}
	return cleaned, nil
}

// Tutor answers a student question grounded only in the provided study-pack
// context. The reply is Markdown in the renderer's restricted dialect.
func (s *AIService) Tutor(ctx context.Context, prompt string, tc TutorContext) (string, error) {
	if s.disabled() {
		return "", ErrAIUnavailable
	}

	system := strings.Join([]string{
		"You are a helpful AI study tutor.",
		"You will answer based ONLY on the provided context (summary, key terms, raw text).",
		"Output MUST be in Markdown (no HTML).",
		"Markdown rules:",
		"- Support **bold**, *italic*, and inline `code`.",
		"- Use fenced code blocks (```lang ... ```) for multi-line examples.",
		"- Headings (#, ##) allowed.",
		"- Lists are fine.",
		"Keep answers clear and exam-ready. If the question is unanswerable from context, say so briefly.",
	}, "\n")

	var parts []string
	if len(tc.Summary) > 0 {
		parts = append(parts, "Summary:\n"+strings.Join(tc.Summary, "\n"))
	}
	if len(tc.KeyTerms) > 0 {
		parts = append(parts, "Key Terms:\n"+strings.Join(tc.KeyTerms, ", "))
	}
	if tc.RawText != "" {
		parts = append(parts, "Raw Text:\n"+truncate(tc.RawText, maxContextChars))
	}

	user := fmt.Sprintf("Context:\n%s\n\nUser question: %s", strings.Join(parts, "\n\n"), prompt)

	content, err := s.complete(ctx, system, user, 0.4)
	if err != nil {
		return "", fmt.Errorf("request tutor answer: %w", err)
	}
	return content, nil
}

// TranscribeAudio converts a recorded clip into text for the study pipeline.
// language is an optional ISO-639-1 hint.
func (s *AIService) TranscribeAudio(ctx context.Context, audio io.Reader, filename, language string) (string, error) {
	if s.disabled() {
		return "", ErrAIUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   audio,
		FilePath: filename,
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("request transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (s *AIService) complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// coercePack parses model output leniently: missing or wrongly typed fields
// become empty slices, and a completely unparseable body is wrapped as a
// single summary line so the caller still has displayable content.
func coercePack(raw string) *models.StudyPack {
	pack := &models.StudyPack{}
	jsonStr := extractJSON(raw)
	if err := json.Unmarshal([]byte(jsonStr), pack); err != nil {
		*pack = models.StudyPack{}
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			pack.Summary = []string{trimmed}
		}
		return pack
	}
	return pack
}

func clampPack(pack *models.StudyPack) {
	pack.Summary = clampStrings(pack.Summary, maxSummaryItems)
	pack.Flashcards = clampCards(pack.Flashcards, maxFlashcards)
	pack.KeyTerms = clampStrings(pack.KeyTerms, maxKeyTerms)
	pack.Analogies = clampStrings(pack.Analogies, maxAnalogies)
	pack.Pitfalls = clampStrings(pack.Pitfalls, maxPitfalls)
	pack.Practice = clampCards(pack.Practice, maxPractice)
}

func clampStrings(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clampCards(in []models.Flashcard, limit int) []models.Flashcard {
	out := make([]models.Flashcard, 0, len(in))
	for _, c := range in {
		c.Question = strings.TrimSpace(c.Question)
		c.Answer = strings.TrimSpace(c.Answer)
		if c.Question == "" || c.Answer == "" {
			continue
		}
		out = append(out, c)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// extractJSON removes markdown code block formatting if present and extracts the JSON
func extractJSON(content string) string {
	content = stripFences(content)

	// Additional safety: find the first { and last } to extract just the JSON object
	if startIdx := strings.Index(content, "{"); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "}"); endIdx != -1 && endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}

	return strings.TrimSpace(content)
}

// coerceStrings parses model output expected to be a JSON string array,
// tolerating fences and surrounding prose. Unparseable output is nil.
func coerceStrings(raw string) []string {
	content := stripFences(raw)
	if startIdx := strings.Index(content, "["); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "]"); endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}
	var items []string
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil
	}
	return items
}

// stripFences drops a surrounding markdown code block like ```json ... ```.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		start := 3
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}
	return strings.TrimSpace(content)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
