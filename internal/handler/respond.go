package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	appI18n "github.com/pavelanni/mockexam/internal/i18n"
	"github.com/pavelanni/mockexam/internal/llm"
	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/session"
	"github.com/pavelanni/mockexam/internal/tutor"
)

// maxBodyBytes bounds request bodies; answer photos arrive inline.
const maxBodyBytes = 16 << 20

var (
	errSessionNotFound = errors.New("exam session not found")
	errBadRequest      = errors.New("bad request")
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// classify maps an error to its HTTP status, failure kind and message ID.
func classify(err error) (status int, kind, msgID, field string) {
	var f *session.Failure
	if errors.As(err, &f) {
		field = f.Field
		switch f.Kind {
		case session.ValidationFailure:
			return http.StatusBadRequest, string(f.Kind), validationMessage(f.Err), field
		case session.GradingFailure:
			return http.StatusBadGateway, string(f.Kind), "ErrGrading", field
		case session.ParseFailure:
			return http.StatusBadGateway, string(f.Kind), "ErrParse", field
		case session.GenerationFailure:
			return http.StatusBadGateway, string(f.Kind), "ErrGeneration", field
		case session.StorageFailure:
			return http.StatusInternalServerError, string(f.Kind), "ErrStorage", field
		}
	}

	var ve *tutor.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, string(session.ValidationFailure), validationMessage(ve.Err), ve.Field
	}

	switch {
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound, "not_found", "ErrSessionNotFound", ""
	case errors.Is(err, errBadRequest), errors.Is(err, model.ErrUnknownKind):
		return http.StatusBadRequest, string(session.ValidationFailure), "ErrBadRequest", ""
	case errors.Is(err, session.ErrUnknownQuestion), errors.Is(err, session.ErrInvalidOption):
		return http.StatusBadRequest, string(session.ValidationFailure), "ErrInvalidAnswer", "answer"
	case errors.Is(err, session.ErrNotIdle):
		return http.StatusConflict, "state", "ErrExamRunning", ""
	case errors.Is(err, session.ErrNotInProgress), errors.Is(err, session.ErrDiscarded):
		return http.StatusConflict, "state", "ErrNotInProgress", ""
	case llm.IsParse(err):
		return http.StatusBadGateway, string(session.ParseFailure), "ErrParse", ""
	case llm.IsGeneration(err):
		return http.StatusBadGateway, string(session.GenerationFailure), "ErrGeneration", ""
	}
	return http.StatusInternalServerError, "internal", "ErrInternal", ""
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrSubjectRequired), errors.Is(err, tutor.ErrSubjectRequired):
		return "ErrSubjectRequired"
	case errors.Is(err, model.ErrUnknownSubject):
		return "ErrUnknownSubject"
	case errors.Is(err, session.ErrKindRequired), errors.Is(err, model.ErrUnknownKind):
		return "ErrKindRequired"
	case errors.Is(err, tutor.ErrTopicRequired):
		return "ErrTopicRequired"
	case errors.Is(err, tutor.ErrQuestionRequired):
		return "ErrQuestionRequired"
	case errors.Is(err, tutor.ErrAnswerRequired):
		return "ErrAnswerRequired"
	}
	return "ErrBadRequest"
}

// localizedError renders err in the request language.
func localizedError(r *http.Request, err error, data map[string]any) (int, errorResponse) {
	status, kind, msgID, field := classify(err)
	return status, errorResponse{
		Error: appI18n.Td(r.Context(), msgID, data),
		Kind:  kind,
		Field: field,
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, data map[string]any) {
	status, resp := localizedError(r, err, data)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "lang", model.LangFromContext(r.Context()), "error", err)
	} else {
		slog.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "lang", model.LangFromContext(r.Context()), "error", err)
	}
	writeJSON(w, status, resp)
}

// noticeFor converts a non-fatal failure into a localized notice.
func noticeFor(r *http.Request, err error) *errorResponse {
	if err == nil {
		return nil
	}
	_, resp := localizedError(r, &session.Failure{Kind: session.StorageFailure, Message: err.Error(), Err: err}, nil)
	return &resp
}

// parseDataURI decodes a base64 data URI such as "data:image/png;base64,...".
// An empty string yields no image.
func parseDataURI(s string) (*llm.Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: image must be a data URI", errBadRequest)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data URI", errBadRequest)
	}
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return nil, fmt.Errorf("%w: data URI must be base64 encoded", errBadRequest)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: unsupported image type %q", errBadRequest, mime)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", errBadRequest, err)
	}
	return &llm.Image{MIMEType: mime, Data: data}, nil
}
