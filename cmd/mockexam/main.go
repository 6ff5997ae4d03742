package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/mockexam/internal/cli"
	"github.com/pavelanni/mockexam/internal/handler"
	appI18n "github.com/pavelanni/mockexam/internal/i18n"
	"github.com/pavelanni/mockexam/internal/llm"
	"github.com/pavelanni/mockexam/internal/llm/prompts"
	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/session"
	"github.com/pavelanni/mockexam/internal/store"
	"github.com/pavelanni/mockexam/internal/tutor"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mockexam",
		Short: "IGCSE mock exams and tutoring powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, takeCmd(), historyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `mockexam --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("store", "sqlite", "Attempt history backend (sqlite, file)")
	f.String("db", "mockexam.db", "SQLite database path")
	f.String("data-dir", "data", "Directory for the file store")
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-provider", "openai", "LLM provider (openai, gemini)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Float64("llm-rps", 0, "Maximum LLM calls per second (0 = unlimited)")
	f.Int("llm-burst", 2, "LLM call burst allowed above llm-rps")
	f.Bool("skip-ping", false, "Skip the LLM health check at start-up")
}

func addCommonFlags(f *pflag.FlagSet) {
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "Allowed CORS origins (repeatable)")
	f.Duration("session-ttl", 2*time.Hour, "Drop exam sessions idle for this long (0 disables)")
	addStoreFlags(f)
	addLLMFlags(f)
	addCommonFlags(f)
	return cmd
}

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Sit a timed mock exam in the terminal",
		RunE:  runTake,
	}
	f := cmd.Flags()
	f.StringP("subject", "s", "", "Subject name or syllabus code (e.g. 0625)")
	f.StringP("kind", "k", string(model.KindMCQ), "Paper type (mcq, theory)")
	f.StringP("topic", "t", "", "Topic to focus on (default: general syllabus)")
	addStoreFlags(f)
	addLLMFlags(f)
	addCommonFlags(f)

	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export the attempt history as JSON",
		RunE:  runHistory,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addStoreFlags(f)
	addCommonFlags(f)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MOCKEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mockexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mockexam")
	v.AddConfigPath("/etc/mockexam")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func loadConfig(v *viper.Viper) model.Config {
	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if variant == "" {
		variant = string(prompts.PromptStandard)
	}
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	return model.Config{
		Model:         v.GetString("llm-model"),
		PromptVariant: variant,
		Lang:          v.GetString("lang"),
		CORSOrigins:   v.GetStringSlice("cors-origins"),
		SessionTTL:    v.GetDuration("session-ttl"),
	}
}

// openHistory opens the configured blob store and the attempt log on top of it.
func openHistory(v *viper.Viper) (*store.AttemptLog, func() error, error) {
	switch strings.ToLower(v.GetString("store")) {
	case "file":
		fs, err := store.NewFileStore(v.GetString("data-dir"))
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		slog.Debug("using file store", "dir", v.GetString("data-dir"))
		return store.NewAttemptLog(fs), func() error { return nil }, nil
	case "sqlite", "":
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		slog.Debug("using sqlite store", "path", v.GetString("db"))
		return store.NewAttemptLog(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want sqlite or file)", v.GetString("store"))
	}
}

// newLLMClient builds the configured oracle backend, checks it unless
// skip-ping is set, and wraps it in the exchange client.
func newLLMClient(ctx context.Context, v *viper.Viper, cfg model.Config) (*llm.Client, func() error, error) {
	set, err := prompts.Default()
	if err != nil {
		return nil, nil, fmt.Errorf("load prompts: %w", err)
	}

	var (
		oracle  llm.Oracle
		closeFn = func() error { return nil }
		ping    func(context.Context) error
	)
	provider := strings.ToLower(v.GetString("llm-provider"))
	switch provider {
	case "gemini":
		g, err := llm.NewGemini(ctx, v.GetString("llm-key"))
		if err != nil {
			return nil, nil, err
		}
		oracle, closeFn = g, g.Close
		ping = func(ctx context.Context) error { return g.Ping(ctx, cfg.Model) }
	case "openai", "":
		o := llm.NewOpenAI(v.GetString("llm-url"), v.GetString("llm-key"))
		oracle, ping = o, o.Ping
	default:
		return nil, nil, fmt.Errorf("unknown llm-provider %q (want openai or gemini)", provider)
	}

	if !v.GetBool("skip-ping") {
		pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := ping(pingCtx); err != nil {
			_ = closeFn()
			return nil, nil, fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "provider", provider, "model", cfg.Model)
	}

	oracle = llm.NewRateLimited(oracle, v.GetFloat64("llm-rps"), v.GetInt("llm-burst"))
	return llm.New(oracle, set, cfg.Model, prompts.PromptVariant(cfg.PromptVariant)), closeFn, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	cfg := loadConfig(v)

	history, closeStore, err := openHistory(v)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	client, closeLLM, err := newLLMClient(cmd.Context(), v, cfg)
	if err != nil {
		return err
	}
	defer closeLLM()

	h := handler.New(client, tutor.New(client, history), history, session.Options{})
	defer h.Close()
	if cfg.SessionTTL > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go h.ExpireIdle(ctx, cfg.SessionTTL, sweepInterval(cfg.SessionTTL))
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type"},
		ExposedHeaders: []string{"Content-Language"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware(cfg.Lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"provider", v.GetString("llm-provider"),
		"model", cfg.Model,
		"store", v.GetString("store"),
		"lang", cfg.Lang,
		"prompt_variant", cfg.PromptVariant,
		"cors_origins", cfg.CORSOrigins,
		"session_ttl", cfg.SessionTTL,
	)
	return http.ListenAndServe(addr, r)
}

// sweepInterval sweeps four times per ttl, at most once a second.
func sweepInterval(ttl time.Duration) time.Duration {
	return max(ttl/4, time.Second)
}

// resolveSubject accepts a full subject name or its four-digit syllabus code.
// Unknown input is returned as is so the session reports it.
func resolveSubject(s string) model.Subject {
	s = strings.TrimSpace(s)
	if subj, err := model.ParseSubject(s); err == nil {
		return subj
	}
	for _, subj := range model.Subjects {
		if subj.Code() == s {
			return subj
		}
	}
	return model.Subject(s)
}

func runTake(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	cfg := loadConfig(v)

	history, closeStore, err := openHistory(v)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	client, closeLLM, err := newLLMClient(cmd.Context(), v, cfg)
	if err != nil {
		return err
	}
	defer closeLLM()

	kind := model.QuestionKind(strings.TrimSpace(v.GetString("kind")))
	if k, err := model.ParseKind(string(kind)); err == nil {
		kind = k
	}
	opts := cli.Options{
		Subject: resolveSubject(v.GetString("subject")),
		Topic:   v.GetString("topic"),
		Kind:    kind,
	}

	c := session.New(client, history, session.Options{})
	defer c.Reset()

	ctx := appI18n.WithLang(cmd.Context(), cfg.Lang)
	return cli.Run(ctx, c, opts, cmd.InOrStdin(), cmd.OutOrStdout())
}

func runHistory(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	history, closeStore, err := openHistory(v)
	if err != nil {
		return err
	}
	defer closeStore()

	attempts, err := history.ReadAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("read attempts: %w", err)
	}

	export := model.HistoryExport{
		ExportedAt: time.Now().UTC(),
		Count:      len(attempts),
		Subjects:   model.Summarise(attempts),
		Attempts:   attempts,
	}
	if export.Subjects == nil {
		export.Subjects = []model.SubjectSummary{}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}
