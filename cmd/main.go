package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"ask-vadym/handler"
	"ask-vadym/internal/integrations/openai"
	"ask-vadym/internal/integrations/paramstore"
	"ask-vadym/internal/persona"
	"ask-vadym/internal/ratelimit"
	"ask-vadym/internal/usecase"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	addr := envStr("ADDR", ":8080")
	model := envStr("OPENAI_MODEL", "gpt-4o-mini")
	maxTokens := envInt("OPENAI_MAX_TOKENS", 150)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 1000)
	quota := envInt("RATE_LIMIT_REQUESTS", 10)
	window := envDuration("RATE_LIMIT_WINDOW", time.Minute)
	origins := splitAndTrim(envStr("ALLOWED_ORIGINS", "http://localhost:3000"))

	// ---- Parameter Store (optional) ----
	var store *paramstore.Client
	if prefix := os.Getenv("PARAM_PREFIX"); prefix != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		store, err = paramstore.New(awsssm.NewFromConfig(cfg), prefix)
		if err != nil {
			slog.Error("failed to create parameter store client", "err", err)
			os.Exit(1)
		}
	}

	apiKey, err := resolveAPIKey(ctx, store)
	if err != nil {
		slog.Error("failed to resolve OpenAI API key", "err", err)
		os.Exit(1)
	}

	personaPrompt, err := resolvePersona(ctx, store)
	if err != nil {
		slog.Error("failed to resolve persona prompt", "err", err)
		os.Exit(1)
	}

	if store != nil {
		if v, err := store.Get(ctx, "config/openai_model"); err == nil && strings.TrimSpace(v) != "" {
			model = strings.TrimSpace(v)
		} else if err != nil {
			slog.Warn("model not read from parameter store, using default", "model", model, "err", err)
		}
	}

	// ---- Wiring ----
	openaiClient, err := openai.NewClient(apiKey, openai.WithMaxTokens(maxTokens))
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	limiter, err := ratelimit.New(quota, window)
	if err != nil {
		slog.Error("failed to create rate limiter", "err", err)
		os.Exit(1)
	}

	chatService, err := usecase.NewChatService(openaiClient, limiter, personaPrompt, model, maxMessageLen)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(chatService, slog.Default())
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	// No WriteTimeout: it would sever long-lived completion streams.
	server := &http.Server{
		Addr:              addr,
		Handler:           h.Router(origins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "model", model)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

// resolveAPIKey prefers the environment and falls back to Parameter Store.
// The process refuses to start without a credential.
func resolveAPIKey(ctx context.Context, store *paramstore.Client) (string, error) {
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		return key, nil
	}
	if store != nil {
		var payload struct {
			Token string `json:"token"`
		}
		if err := store.GetJSON(ctx, "open-ai-token", &payload); err != nil {
			return "", err
		}
		if payload.Token == "" {
			return "", errors.New("parameter store token is empty")
		}
		return payload.Token, nil
	}
	return "", errors.New("OPENAI_API_KEY is not set and PARAM_PREFIX is not configured")
}

// resolvePersona resolves the system prompt: Parameter Store value, then a
// local file override, then the embedded default.
func resolvePersona(ctx context.Context, store *paramstore.Client) (string, error) {
	if store != nil {
		v, err := store.Get(ctx, "persona_prompt")
		if err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
		if err != nil {
			slog.Warn("persona prompt not read from parameter store, falling back", "err", err)
		}
	}
	if path := os.Getenv("PERSONA_FILE"); path != "" {
		return persona.LoadFile(path)
	}
	return persona.Default(), nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
