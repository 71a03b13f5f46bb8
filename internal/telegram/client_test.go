package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/buybackd/internal/scheduler"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// The chat ID is parsed before the bot is contacted.
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestFormatError(t *testing.T) {
	got := formatError("refresh_assets", errors.New("appraisal failure: batch 100-200: status \"502\""))
	if !strings.Contains(got, "refresh\\_assets") {
		t.Errorf("job name not escaped: %q", got)
	}
	if !strings.Contains(got, "batch 100\\-200") {
		t.Errorf("error text not escaped: %q", got)
	}
}

func TestFormatRecovery(t *testing.T) {
	want := "✅ *Job rates recovered* after 3 consecutive failure\\(s\\)"
	if got := formatRecovery("rates", 3); got != want {
		t.Errorf("formatRecovery() = %q, want %q", got, want)
	}
}

func TestFormatStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	jobs := []scheduler.JobStatus{
		{Name: "assets", LastStart: now.Add(-90 * time.Second), LastDuration: "1.5s"},
		{Name: "contracts", ConsecutiveFailures: 2, LastStart: now.Add(-time.Minute), LastDuration: "3ms", LastError: "database is locked"},
		{Name: "rates"},
	}
	got := formatStatus(jobs, now)

	for _, want := range []string{
		"🟢 *assets* last run 1m30s ago \\(1\\.5s\\)",
		"🔴 *contracts*",
		"2 failures: database is locked",
		"*rates* never run",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("formatStatus() missing %q in:\n%s", want, got)
		}
	}
	if formatStatus(nil, now) != "No jobs registered" {
		t.Error("empty status text")
	}
}
