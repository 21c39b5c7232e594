package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedStreamer emits its deltas then returns err. failBefore makes
// it fail without emitting anything.
type scriptedStreamer struct {
	name       string
	deltas     []string
	err        error
	failBefore bool
	calls      int
}

func (s *scriptedStreamer) Name() string { return s.name }

func (s *scriptedStreamer) Stream(_ context.Context, _ []Message, emit func(string)) error {
	s.calls++
	if s.failBefore {
		return s.err
	}
	for _, d := range s.deltas {
		emit(d)
	}
	return s.err
}

func TestChainFirstBackendWins(t *testing.T) {
	primary := &scriptedStreamer{name: "primary", deltas: []string{"hello ", "there."}}
	backup := &scriptedStreamer{name: "backup", deltas: []string{"unused"}}
	chain := NewChain(primary, backup)

	var got strings.Builder
	name, err := chain.Stream(context.Background(), nil, func(d string) { got.WriteString(d) })
	if err != nil {
		t.Fatal(err)
	}
	if name != "primary" {
		t.Errorf("backend = %q, want primary", name)
	}
	if got.String() != "hello there." {
		t.Errorf("reply = %q", got.String())
	}
	if backup.calls != 0 {
		t.Error("backup consulted although primary succeeded")
	}
}

func TestChainFallsBackBeforeContent(t *testing.T) {
	primary := &scriptedStreamer{name: "primary", failBefore: true, err: errors.New("connect refused")}
	backup := &scriptedStreamer{name: "backup", deltas: []string{"from backup."}}
	chain := NewChain(primary, backup)

	var got strings.Builder
	name, err := chain.Stream(context.Background(), nil, func(d string) { got.WriteString(d) })
	if err != nil {
		t.Fatal(err)
	}
	if name != "backup" {
		t.Errorf("backend = %q, want backup", name)
	}
	if got.String() != "from backup." {
		t.Errorf("reply = %q", got.String())
	}
}

func TestChainNoFallbackAfterContent(t *testing.T) {
	primary := &scriptedStreamer{name: "primary", deltas: []string{"partial "}, err: errors.New("mid-stream abort")}
	backup := &scriptedStreamer{name: "backup", deltas: []string{"unused"}}
	chain := NewChain(primary, backup)

	name, err := chain.Stream(context.Background(), nil, func(string) {})
	if err == nil {
		t.Fatal("mid-content failure swallowed")
	}
	if name != "primary" {
		t.Errorf("backend = %q, want primary", name)
	}
	if backup.calls != 0 {
		t.Error("fell back after content had already streamed")
	}
}

func TestChainAllFail(t *testing.T) {
	a := &scriptedStreamer{name: "a", failBefore: true, err: errors.New("down")}
	b := &scriptedStreamer{name: "b", failBefore: true, err: errors.New("also down")}
	chain := NewChain(a, b)

	_, err := chain.Stream(context.Background(), nil, func(string) {})
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("err = %v, want ErrAllBackendsFailed", err)
	}
}

func TestChainCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &scriptedStreamer{name: "a", deltas: []string{"unused"}}
	chain := NewChain(a)

	_, err := chain.Stream(ctx, nil, func(string) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if a.calls != 0 {
		t.Error("backend consulted after cancellation")
	}
}
