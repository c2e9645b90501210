package models

import (
	"errors"
	"math"
	"testing"
)

func TestParseDeliveryTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		hour    int
		minute  int
		wantErr bool
	}{
		{"morning", "09:00", 9, 0, false},
		{"midnight", "00:00", 0, 0, false},
		{"last minute", "23:59", 23, 59, false},
		{"padded whitespace", " 12:30 ", 12, 30, false},
		{"missing minute", "09", 0, 0, true},
		{"hour too large", "24:00", 0, 0, true},
		{"minute too large", "12:60", 0, 0, true},
		{"negative hour", "-1:30", 0, 0, true},
		{"not a number", "ab:cd", 0, 0, true},
		{"empty", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDeliveryTime(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDeliveryTime(%q) expected error", tt.input)
				}
				if !errors.Is(err, ErrInvalidDeliveryTime) {
					t.Errorf("expected ErrInvalidDeliveryTime, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDeliveryTime(%q) error: %v", tt.input, err)
			}
			if got.Hour != tt.hour || got.Minute != tt.minute {
				t.Errorf("ParseDeliveryTime(%q) = %v, want %02d:%02d", tt.input, got, tt.hour, tt.minute)
			}
		})
	}
}

func TestDeliveryTimeMatches(t *testing.T) {
	dt := DeliveryTime{Hour: 9, Minute: 0}

	if !dt.Matches(9, 0) {
		t.Error("Expected 09:00 to match (9, 0)")
	}
	if dt.Matches(9, 1) {
		t.Error("Expected 09:00 not to match (9, 1)")
	}
	if dt.Matches(10, 0) {
		t.Error("Expected 09:00 not to match (10, 0)")
	}
}

func TestDeliveryTimeString(t *testing.T) {
	dt := DeliveryTime{Hour: 7, Minute: 5}
	if dt.String() != "07:05" {
		t.Errorf("String() = %q, want 07:05", dt.String())
	}
}

func TestNextRatingSequence(t *testing.T) {
	// Starting from zero, the votes 5, 3, 4 must produce the running means
	// 5.0, 4.0, 4.0 with times_sent stepping 1, 2, 3.
	votes := []int{5, 3, 4}
	wantRatings := []float64{5.0, 4.0, 4.0}

	rating := 0.0
	timesSent := 0
	for i, vote := range votes {
		rating, timesSent = NextRating(rating, timesSent, vote)
		if math.Abs(rating-wantRatings[i]) > 1e-9 {
			t.Errorf("after vote %d: rating = %v, want %v", i+1, rating, wantRatings[i])
		}
		if timesSent != i+1 {
			t.Errorf("after vote %d: timesSent = %d, want %d", i+1, timesSent, i+1)
		}
	}
}

func TestNextRatingWeightsEarlyVotes(t *testing.T) {
	// A first vote fully determines the rating; a hundredth vote barely
	// moves it.
	rating, timesSent := NextRating(0, 0, 5)
	if rating != 5.0 {
		t.Fatalf("first vote: rating = %v, want 5.0", rating)
	}

	rating = 5.0
	timesSent = 99
	rating, timesSent = NextRating(rating, timesSent, 1)
	if rating <= 4.9 || rating >= 5.0 {
		t.Errorf("late vote moved rating to %v, expected a small shift below 5.0", rating)
	}
	if timesSent != 100 {
		t.Errorf("timesSent = %d, want 100", timesSent)
	}
}

func TestNewPreferences(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"dedupes", []string{"animals", "animals", "puns"}, []string{"animals", "puns"}},
		{"trims and drops empties", []string{" animals ", "", "  "}, []string{"animals"}},
		{"keeps order", []string{"puns", "animals", "puns"}, []string{"puns", "animals"}},
		{"empty input", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewPreferences(tt.input...)
			if len(got.Categories) != len(tt.expected) {
				t.Fatalf("got %v, want %v", got.Categories, tt.expected)
			}
			for i := range tt.expected {
				if got.Categories[i] != tt.expected[i] {
					t.Errorf("Categories[%d] = %q, want %q", i, got.Categories[i], tt.expected[i])
				}
			}
		})
	}
}

func TestDefaultPreferences(t *testing.T) {
	prefs := DefaultPreferences()
	if len(prefs.Categories) != 1 || prefs.Categories[0] != "general" {
		t.Errorf("DefaultPreferences() = %v, want [general]", prefs.Categories)
	}
	if prefs.IsEmpty() {
		t.Error("DefaultPreferences should not be empty")
	}
}
