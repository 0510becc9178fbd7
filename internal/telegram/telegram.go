package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"malmohomes/collector/config"
)

type Service struct {
	logger *logrus.Logger
	client *http.Client
	config config.TelegramConfig
}

// RunReport is what a finished collection run reports to the chat.
type RunReport struct {
	RunID       string
	OutputDir   string
	Groups      int
	Processed   int
	Successful  int
	Failed      int
	Skipped     int
	SuccessRate float64
	Duration    time.Duration
	Interrupted bool
	Fatal       error
}

func NewService(cfg config.TelegramConfig, logger *logrus.Logger) *Service {
	return &Service{
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		config: cfg,
	}
}

func (s *Service) Enabled() bool {
	return s.config.Enabled
}

// SendMessage sends a message to the configured Telegram chat
func (s *Service) SendMessage(ctx context.Context, message string) error {
	if !s.config.Enabled {
		return nil
	}

	if s.config.BotToken == "" {
		return errors.New("Telegram bot token is not configured")
	}

	if s.config.ChatID == "" {
		return errors.New("Telegram chat ID is not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(s.config.APIURL, "/"), s.config.BotToken)
	payload := map[string]interface{}{
		"chat_id":                  s.config.ChatID,
		"text":                     message,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build Telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		case http.StatusNotFound:
			return errors.New("bot not found - please check your token from @BotFather")
		default:
			return fmt.Errorf("Telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	return nil
}

// NotifyRunSummary reports the outcome of a collection run
func (s *Service) NotifyRunSummary(ctx context.Context, report RunReport) error {
	if !s.config.Enabled {
		return nil
	}

	title := "<b>✅ Collection run finished</b>"
	switch {
	case report.Fatal != nil:
		title = "<b>❌ Collection run aborted</b>"
	case report.Interrupted:
		title = "<b>⏸️ Collection run interrupted</b>"
	case report.Failed > 0:
		title = "<b>⚠️ Collection run finished with failures</b>"
	}

	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "🆔 %s\n", html.EscapeString(report.RunID))
	fmt.Fprintf(&sb, "📦 Groups: %d\n", report.Groups)
	fmt.Fprintf(&sb, "🏠 Processed: %d\n", report.Processed)
	fmt.Fprintf(&sb, "✔️ Successful: %d (%.1f%%)\n", report.Successful, report.SuccessRate)
	fmt.Fprintf(&sb, "✖️ Failed: %d\n", report.Failed)
	if report.Skipped > 0 {
		fmt.Fprintf(&sb, "⏭️ Skipped: %d\n", report.Skipped)
	}
	fmt.Fprintf(&sb, "⏱️ Duration: %s\n", report.Duration.Round(time.Second))
	if report.OutputDir != "" {
		fmt.Fprintf(&sb, "📁 %s\n", html.EscapeString(report.OutputDir))
	}
	if report.Fatal != nil {
		fmt.Fprintf(&sb, "\n<code>%s</code>", html.EscapeString(report.Fatal.Error()))
	}

	if err := s.SendMessage(ctx, sb.String()); err != nil {
		s.logger.WithError(err).Error("Failed to send run summary")
		return err
	}
	return nil
}
