package util

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{name: "short string unchanged", input: "aligning loci", maxLen: 24, expected: "aligning loci"},
		{name: "exact length unchanged", input: "hello", maxLen: 5, expected: "hello"},
		{name: "long string truncated", input: "hello world", maxLen: 8, expected: "hello..."},
		{name: "tiny maxLen returns ellipsis", input: "hello", maxLen: 3, expected: "..."},
		{name: "zero maxLen returns ellipsis", input: "hello", maxLen: 0, expected: "..."},
		{name: "multibyte runes counted not bytes", input: "ααααα", maxLen: 4, expected: "α..."},
		{name: "empty input", input: "", maxLen: 10, expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateString(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func TestTruncateANSI(t *testing.T) {
	styled := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("detecting orthologs")

	t.Run("fits unchanged", func(t *testing.T) {
		if got := TruncateANSI(styled, 40); got != styled {
			t.Errorf("TruncateANSI changed a string that fits: %q", got)
		}
	})

	t.Run("clamped to width", func(t *testing.T) {
		got := TruncateANSI(styled, 10)
		if w := lipgloss.Width(got); w > 10 {
			t.Errorf("visual width = %d, want <= 10", w)
		}
	})

	t.Run("plain string truncated", func(t *testing.T) {
		if got := TruncateANSI("hello world", 8); got != "hello..." {
			t.Errorf("got %q, want %q", got, "hello...")
		}
	})

	t.Run("tiny width returns ellipsis", func(t *testing.T) {
		if got := TruncateANSI("hello", 2); got != "..." {
			t.Errorf("got %q, want %q", got, "...")
		}
	})
}
