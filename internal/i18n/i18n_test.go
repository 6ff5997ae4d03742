package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pavelanni/mockexam/internal/model"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLang(context.Background(), lang)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "IGCSE Mock Exams" {
		t.Errorf("T(AppTitle) = %q, want 'IGCSE Mock Exams'", got)
	}

	got = T(ctx, "ErrSubjectRequired")
	if got != "Please choose a subject." {
		t.Errorf("T(ErrSubjectRequired) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "ErrSubjectRequired")
	if got != "Выберите предмет." {
		t.Errorf("T(ErrSubjectRequired) = %q, want 'Выберите предмет.'", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	ids := []string{
		"ErrSubjectRequired", "ErrUnknownSubject", "ErrKindRequired", "ErrTopicRequired",
		"ErrQuestionRequired", "ErrAnswerRequired", "ErrGeneration", "ErrParse", "ErrGrading",
		"ErrStorage", "ErrNotInProgress", "ErrExamRunning", "ErrSessionNotFound",
		"ErrInvalidAnswer", "ErrBadRequest", "ErrInternal", "NoHistory", "TimeRemaining",
		"ScoreLine", "QuestionHeader", "Grading", "Generating", "PromptAnswer",
	}
	for _, lang := range []string{"en", "ru"} {
		ctx := initLang(t, lang)
		for _, id := range ids {
			if got := Td(ctx, id, map[string]any{}); got == id {
				t.Errorf("%s: missing translation for %s", lang, id)
			}
		}
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsAnswered", 1); got != "1 question answered" {
		t.Errorf("Tp(QuestionsAnswered, 1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsAnswered", 7); got != "7 questions answered" {
		t.Errorf("Tp(QuestionsAnswered, 7) = %q", got)
	}

	ctx = initLang(t, "ru")
	if got := Tp(ctx, "QuestionsAnswered", 5); got != "Отвечено 5 вопросов" {
		t.Errorf("Tp(QuestionsAnswered, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "TimeRemaining", map[string]any{"Time": "9:59"})
	if got != "Time remaining: 9:59" {
		t.Errorf("Td(TimeRemaining) = %q, want 'Time remaining: 9:59'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMatch(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tests := []struct {
		accept string
		want   string
	}{
		{"", "en"},
		{"ru-RU,ru;q=0.9,en;q=0.8", "ru"},
		{"en-GB", "en"},
		{"%%%", "en"},
	}
	for _, tt := range tests {
		if got := Match(tt.accept, "en"); got != tt.want {
			t.Errorf("Match(%q) = %q, want %q", tt.accept, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var gotMsg, gotLang string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMsg = T(r.Context(), "ErrSessionNotFound")
		gotLang = model.LangFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ru")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if gotMsg != "Сессия экзамена не найдена." {
		t.Errorf("message = %q, want Russian", gotMsg)
	}
	if gotLang != "ru" || rec.Header().Get("Content-Language") != "ru" {
		t.Errorf("lang = %q, Content-Language = %q", gotLang, rec.Header().Get("Content-Language"))
	}
}

func TestWithLang(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := WithLang(context.Background(), "ru")
	if got := model.LangFromContext(ctx); got != "ru" {
		t.Errorf("LangFromContext = %q, want ru", got)
	}
	if got := T(ctx, "ErrSessionNotFound"); got != "Сессия экзамена не найдена." {
		t.Errorf("T = %q, want Russian", got)
	}
}
