package history

import (
	"fmt"
	"testing"
	"time"

	"go.aimuz.me/voxd/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("") // in-memory
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func appendTurns(t *testing.T, s *Store, n int) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		err := s.Append(types.Turn{
			SessionID: "s1",
			Role:      role,
			Content:   fmt.Sprintf("turn %d", i),
			At:        base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestRecentChronological(t *testing.T) {
	s := openTestStore(t)
	appendTurns(t, s, 6)

	turns, err := s.Recent(4)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 4 {
		t.Fatalf("len = %d, want 4", len(turns))
	}
	for i, want := range []string{"turn 2", "turn 3", "turn 4", "turn 5"} {
		if turns[i].Content != want {
			t.Errorf("turns[%d] = %q, want %q", i, turns[i].Content, want)
		}
	}
}

func TestRecentFewerThanAsked(t *testing.T) {
	s := openTestStore(t)
	appendTurns(t, s, 2)

	turns, err := s.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
}

func TestTrimBound(t *testing.T) {
	s := openTestStore(t)
	appendTurns(t, s, 25)

	// Over the keep bound of 20: cut back to 10.
	if err := s.Trim(20, 10); err != nil {
		t.Fatal(err)
	}
	n, err := s.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Fatalf("len after trim = %d, want 10", n)
	}

	// The survivors are the newest turns.
	turns, err := s.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if turns[0].Content != "turn 15" || turns[9].Content != "turn 24" {
		t.Errorf("survivors = %q .. %q, want turn 15 .. turn 24",
			turns[0].Content, turns[9].Content)
	}
}

func TestTrimUnderBoundIsNoop(t *testing.T) {
	s := openTestStore(t)
	appendTurns(t, s, 5)

	if err := s.Trim(20, 10); err != nil {
		t.Fatal(err)
	}
	n, err := s.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("len = %d, want untouched 5", n)
	}
}
