package question

import (
	"context"
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	q, err := Normalize(Question{
		ID:             "  q-1  ",
		Content:        " Explain indexes. ",
		JobRole:        " backend-engineer ",
		Technologies:   []string{" go ", "", "postgres"},
		Difficulty:     0.5,
		Discrimination: 1.2,
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if q.ID != "q-1" || q.Content != "Explain indexes." || q.JobRole != "backend-engineer" {
		t.Fatalf("Normalize() = %+v, fields not trimmed", q)
	}
	if len(q.Technologies) != 2 {
		t.Fatalf("Technologies = %v, want 2 entries", q.Technologies)
	}
}

func TestNormalizeValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   Question
		wantErr error
	}{
		{"empty id", Question{Content: "c", Discrimination: 1}, ErrEmptyQuestionID},
		{"empty content", Question{ID: "q-1", Discrimination: 1}, ErrEmptyContent},
		{"zero discrimination", Question{ID: "q-1", Content: "c"}, ErrInvalidDiscrimination},
		{"negative discrimination", Question{ID: "q-1", Content: "c", Discrimination: -1}, ErrInvalidDiscrimination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(tt.input); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Normalize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryBankPool(t *testing.T) {
	bank, err := NewMemoryBank([]Question{
		{ID: "q-3", Content: "c3", JobRole: "backend-engineer", Technologies: []string{"go"}, Discrimination: 1},
		{ID: "q-1", Content: "c1", JobRole: "backend-engineer", Technologies: []string{"postgres"}, Discrimination: 1},
		{ID: "q-2", Content: "c2", JobRole: "frontend-engineer", Technologies: []string{"react"}, Discrimination: 1},
		{ID: "q-4", Content: "c4", JobRole: "", Technologies: nil, Discrimination: 1},
	})
	if err != nil {
		t.Fatalf("NewMemoryBank() error = %v", err)
	}

	ctx := context.Background()

	pool, err := bank.Pool(ctx, "backend-engineer", []string{"GO"})
	if err != nil {
		t.Fatalf("Pool() error = %v", err)
	}
	got := make([]string, 0, len(pool))
	for _, q := range pool {
		got = append(got, q.ID)
	}
	// q-4 has no role or technologies, so it matches every filter.
	want := []string{"q-3", "q-4"}
	if len(got) != len(want) {
		t.Fatalf("Pool() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Pool() = %v, want %v", got, want)
		}
	}

	all, err := bank.Pool(ctx, "", nil)
	if err != nil {
		t.Fatalf("Pool(no filters) error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Pool(no filters) returned %d items, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("Pool() not sorted by id: %v", all)
		}
	}
}

func TestMemoryBankRejectsInvalidItems(t *testing.T) {
	if _, err := NewMemoryBank([]Question{{ID: "q-1", Content: "c"}}); !errors.Is(err, ErrInvalidDiscrimination) {
		t.Fatalf("NewMemoryBank() error = %v, want ErrInvalidDiscrimination", err)
	}
}

func TestMemoryBankPoolCancelled(t *testing.T) {
	bank, err := NewMemoryBank(nil)
	if err != nil {
		t.Fatalf("NewMemoryBank() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := bank.Pool(ctx, "", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Pool() error = %v, want context.Canceled", err)
	}
}
