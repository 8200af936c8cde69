package export

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Quit My Job", "Quit-My-Job"},
		{"Move to Berlin v1.2", "Move-to-Berlin-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "decision"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderDecisionHTML(t *testing.T) {
	data := TemplateData{
		Title:           "Switch jobs",
		Context:         "Current role has plateaued",
		ExpectedOutcome: "More growth within a year",
		Status:          "REVIEWED",
		Author:          "Ada",
		Tags:            []string{"career", "finance"},
		CreatedAt:       time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Review: &TemplateReview{
			ActualOutcome:  "Got promoted twice",
			LessonsLearned: "Trust the research",
			WouldDoDiff:    "Negotiate harder",
			ReviewedAt:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	html, err := RenderDecisionHTML(data)
	if err != nil {
		t.Fatalf("RenderDecisionHTML() error = %v", err)
	}

	for _, want := range []string{
		"Switch jobs",
		"Current role has plateaued",
		"More growth within a year",
		"career",
		"Got promoted twice",
		"Trust the research",
		"Negotiate harder",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestRenderDecisionHTMLWithoutReview(t *testing.T) {
	html, err := RenderDecisionHTML(TemplateData{
		Title:           "Buy a bike",
		Context:         "Commute is short",
		ExpectedOutcome: "Save on transit",
		Status:          "PENDING",
		Author:          "Ada",
		CreatedAt:       time.Now(),
	})
	if err != nil {
		t.Fatalf("RenderDecisionHTML() error = %v", err)
	}
	if strings.Contains(html, "Actual Outcome") {
		t.Error("HTML should not contain a review section for pending decisions")
	}
}
