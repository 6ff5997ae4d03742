package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/store"
)

func TestResolveSubject(t *testing.T) {
	tests := []struct {
		in   string
		want model.Subject
	}{
		{"Physics (0625)", model.SubjectPhysics},
		{" 0580 ", model.SubjectMathematics},
		{"0606", model.SubjectAdditionalMath},
		{"Latin", model.Subject("Latin")},
		{"", model.Subject("")},
	}
	for _, tt := range tests {
		if got := resolveSubject(tt.in); got != tt.want {
			t.Errorf("resolveSubject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfigVariant(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "standard"},
		{" Strict ", "strict"},
		{"lenient", "lenient"},
		{"harsh", "standard"},
	}
	for _, tt := range tests {
		v := viper.New()
		v.Set("prompt-variant", tt.in)
		v.Set("llm-model", "m")
		if got := loadConfig(v); got.PromptVariant != tt.want || got.Model != "m" {
			t.Errorf("loadConfig(%q) = %+v, want variant %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionTTL(t *testing.T) {
	cmd := serveCmd()
	if err := cmd.ParseFlags([]string{"--session-ttl", "45m"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if got := loadConfig(viperForCmd(cmd)).SessionTTL; got != 45*time.Minute {
		t.Errorf("SessionTTL = %v, want 45m", got)
	}

	tests := []struct {
		ttl, want time.Duration
	}{
		{2 * time.Hour, 30 * time.Minute},
		{2 * time.Second, time.Second},
	}
	for _, tt := range tests {
		if got := sweepInterval(tt.ttl); got != tt.want {
			t.Errorf("sweepInterval(%v) = %v, want %v", tt.ttl, got, tt.want)
		}
	}
}

func TestOpenHistoryUnknownStore(t *testing.T) {
	v := viper.New()
	v.Set("store", "redis")
	if _, _, err := openHistory(v); err == nil {
		t.Error("expected error for unknown store")
	}
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	log := store.NewAttemptLog(fs)
	ctx := context.Background()
	for _, a := range []model.ExamAttempt{
		{ID: "1", Subject: model.SubjectPhysics, Timestamp: 1, Score: 4, MaxScore: 10},
		{ID: "2", Subject: model.SubjectPhysics, Timestamp: 2, Score: 8, MaxScore: 10},
		{ID: "3", Subject: model.SubjectBiology, Timestamp: 3, Score: 5, MaxScore: 5},
	} {
		if err := log.Append(ctx, a); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	cmd := historyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--store", "file", "--data-dir", dir, "--log-level", "error"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var export model.HistoryExport
	if err := json.Unmarshal(out.Bytes(), &export); err != nil {
		t.Fatalf("decode export: %v\n%s", err, out.String())
	}
	if export.Count != 3 || len(export.Attempts) != 3 {
		t.Errorf("count = %d, attempts = %d", export.Count, len(export.Attempts))
	}
	if len(export.Subjects) != 2 {
		t.Fatalf("subjects = %+v", export.Subjects)
	}
	physics := export.Subjects[0]
	if physics.Subject != model.SubjectPhysics || physics.Attempts != 2 || physics.BestPercent != 80 || physics.LastPercent != 80 {
		t.Errorf("physics summary = %+v", physics)
	}
}
