package match

import (
	"context"
	"sync"
	"testing"
	"time"

	"quiz-arena/internal/domain"
)

// recordingChannel captures published messages for assertions.
type recordingChannel struct {
	mu       sync.Mutex
	messages []Message
}

func (c *recordingChannel) Publish(_ context.Context, msg Message) error {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	return nil
}

func (c *recordingChannel) Subscribe(_ context.Context) (<-chan Message, func(), error) {
	ch := make(chan Message)
	return ch, func() { close(ch) }, nil
}

func (c *recordingChannel) byType(t MessageType) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Message
	for _, m := range c.messages {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func TestRoomAnnouncesReadyWhenFull(t *testing.T) {
	ctx := context.Background()
	ch := &recordingChannel{}
	room := NewRoom("room-1", ch)

	if err := room.Join(ctx, "u1"); err != nil {
		t.Fatalf("join u1: %v", err)
	}
	if got := ch.byType(MsgMatchReady); len(got) != 0 {
		t.Fatalf("one participant must not trigger match-ready")
	}

	if err := room.Join(ctx, "u2"); err != nil {
		t.Fatalf("join u2: %v", err)
	}
	if got := ch.byType(MsgMatchReady); len(got) != 1 {
		t.Fatalf("expected exactly one match-ready, got %d", len(got))
	}

	// Rejoining is idempotent, a third user is rejected.
	if err := room.Join(ctx, "u1"); err != nil {
		t.Fatalf("rejoin u1: %v", err)
	}
	if err := room.Join(ctx, "u3"); err != domain.ErrRoomFull {
		t.Fatalf("expected room full, got %v", err)
	}
	if got := ch.byType(MsgMatchReady); len(got) != 1 {
		t.Fatalf("rejoin must not re-announce, got %d", len(got))
	}
}

func TestRoomVerdictHigherScoreWins(t *testing.T) {
	ctx := context.Background()
	ch := &recordingChannel{}
	room := NewRoom("room-1", ch)
	_ = room.Join(ctx, "u1")
	_ = room.Join(ctx, "u2")

	_ = room.Complete(ctx, domain.CompletionReport{UserID: "u1", Score: 30, TimeTakenSec: 100})
	if got := ch.byType(MsgGameOver); len(got) != 0 {
		t.Fatalf("verdict requires both reports")
	}
	_ = room.Complete(ctx, domain.CompletionReport{UserID: "u2", Score: 20, TimeTakenSec: 50})

	over := ch.byType(MsgGameOver)
	if len(over) != 1 {
		t.Fatalf("expected one game-over, got %d", len(over))
	}
	if v := over[0].Verdict; v == nil || v.WinnerID != "u1" || v.IsDraw {
		t.Fatalf("expected u1 to win on points, got %+v", over[0].Verdict)
	}
}

func TestRoomVerdictTieBreaksOnTimeThenDraw(t *testing.T) {
	ctx := context.Background()
	ch := &recordingChannel{}
	room := NewRoom("room-1", ch)
	_ = room.Complete(ctx, domain.CompletionReport{UserID: "u1", Score: 20, TimeTakenSec: 80})
	_ = room.Complete(ctx, domain.CompletionReport{UserID: "u2", Score: 20, TimeTakenSec: 60})
	if v := ch.byType(MsgGameOver)[0].Verdict; v.WinnerID != "u2" {
		t.Fatalf("faster finisher should win the points tie, got %+v", v)
	}

	ch2 := &recordingChannel{}
	room2 := NewRoom("room-2", ch2)
	_ = room2.Complete(ctx, domain.CompletionReport{UserID: "u1", Score: 20, TimeTakenSec: 60})
	_ = room2.Complete(ctx, domain.CompletionReport{UserID: "u2", Score: 20, TimeTakenSec: 60})
	if v := ch2.byType(MsgGameOver)[0].Verdict; !v.IsDraw || v.WinnerID != "" {
		t.Fatalf("full tie should draw, got %+v", v)
	}
}

func TestRoomCompleteIdempotentAfterVerdict(t *testing.T) {
	ctx := context.Background()
	ch := &recordingChannel{}
	room := NewRoom("room-1", ch)
	_ = room.Complete(ctx, domain.CompletionReport{UserID: "u1", Score: 10})
	_ = room.Complete(ctx, domain.CompletionReport{UserID: "u2", Score: 5})
	_ = room.Complete(ctx, domain.CompletionReport{UserID: "u2", Score: 99})
	if got := ch.byType(MsgGameOver); len(got) != 1 {
		t.Fatalf("verdict must publish exactly once, got %d", len(got))
	}
}

func TestRoomProgressRelaysSender(t *testing.T) {
	ctx := context.Background()
	ch := &recordingChannel{}
	room := NewRoom("room-1", ch)
	p := domain.ProgressUpdate{UserID: "u1", Seq: 4, Score: 10, ElapsedSec: 12}
	if err := room.Progress(ctx, p); err != nil {
		t.Fatalf("progress: %v", err)
	}
	got := ch.byType(MsgUpdateProgress)
	if len(got) != 1 || got[0].SenderID != "u1" || got[0].Progress.Seq != 4 {
		t.Fatalf("unexpected relay %+v", got)
	}
}

func TestRoomAppliesPeerJoinSignal(t *testing.T) {
	ctx := context.Background()
	ch := &recordingChannel{}
	room := NewRoom("room-1", ch)

	// One participant locally, the second announced by a peer instance.
	if err := room.Join(ctx, "alice"); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	room.observe(Message{Type: MsgJoinRoom, RoomID: "room-1", SenderID: "bob"})

	if !room.Ready() {
		t.Fatalf("room should arm once the remote join is observed")
	}
	if got := ch.byType(MsgMatchReady); len(got) != 1 {
		t.Fatalf("expected one match-ready, got %d", len(got))
	}

	// Echo of the remote join must not re-announce.
	room.observe(Message{Type: MsgJoinRoom, RoomID: "room-1", SenderID: "bob"})
	if got := ch.byType(MsgMatchReady); len(got) != 1 {
		t.Fatalf("replayed join re-announced, got %d match-ready", len(got))
	}
}

func TestRoomDecidesVerdictFromPeerCompletion(t *testing.T) {
	ctx := context.Background()
	ch := &recordingChannel{}
	room := NewRoom("room-1", ch)

	room.observe(Message{
		Type:       MsgQuizCompleted,
		RoomID:     "room-1",
		SenderID:   "bob",
		Completion: &domain.CompletionReport{UserID: "bob", Score: 20, TimeTakenSec: 50},
	})
	if _, ok := room.Verdict(); ok {
		t.Fatalf("one report must not decide the match")
	}

	if err := room.Complete(ctx, domain.CompletionReport{UserID: "alice", Score: 30, TimeTakenSec: 100}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	over := ch.byType(MsgGameOver)
	if len(over) != 1 {
		t.Fatalf("expected one game-over, got %d", len(over))
	}
	if v, ok := room.Verdict(); !ok || v.WinnerID != "alice" {
		t.Fatalf("expected alice to win on points, got %+v ok=%v", v, ok)
	}
}

func TestRoomAbsorbsPeerAnnouncements(t *testing.T) {
	ch := &recordingChannel{}
	room := NewRoom("room-1", ch)

	room.observe(Message{Type: MsgMatchReady, RoomID: "room-1"})
	if !room.Ready() {
		t.Fatalf("observed match-ready should arm the room")
	}

	room.observe(Message{Type: MsgGameOver, RoomID: "room-1", Verdict: &domain.Verdict{WinnerID: "bob"}})
	if !room.Done() {
		t.Fatalf("observed game-over should finish the room")
	}
	if v, ok := room.Verdict(); !ok || v.WinnerID != "bob" {
		t.Fatalf("expected bob's verdict to stick, got %+v ok=%v", v, ok)
	}

	// A completion arriving after the decided verdict is ignored.
	room.observe(Message{
		Type:       MsgQuizCompleted,
		RoomID:     "room-1",
		SenderID:   "alice",
		Completion: &domain.CompletionReport{UserID: "alice", Score: 99},
	})
	if got := ch.byType(MsgGameOver); len(got) != 0 {
		t.Fatalf("late completion must not republish game-over, got %d", len(got))
	}
}

type staticFactory struct{ ch RoomChannel }

func (f staticFactory) Channel(string) RoomChannel { return f.ch }

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry(staticFactory{ch: &recordingChannel{}})

	room, err := reg.GetOrCreate("room-1")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if again, _ := reg.GetOrCreate("room-1"); again != room {
		t.Fatalf("expected same room instance")
	}

	_ = room.Join(context.Background(), "u1")
	reg.DeleteIfEmpty("room-1")
	if _, ok := reg.Get("room-1"); !ok {
		t.Fatalf("occupied room must not be deleted")
	}

	room.Leave(context.Background(), "u1")
	reg.DeleteIfEmpty("room-1")
	if _, ok := reg.Get("room-1"); ok {
		t.Fatalf("empty room should be deleted")
	}
}

func TestRegistryDeletesFinishedRooms(t *testing.T) {
	reg := NewRegistry(staticFactory{ch: &recordingChannel{}})
	room, err := reg.GetOrCreate("room-1")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	_ = room.Join(context.Background(), "u1")
	_ = room.Complete(context.Background(), domain.CompletionReport{UserID: "u1", Score: 1, TimeTakenSec: 1})
	_ = room.Complete(context.Background(), domain.CompletionReport{UserID: "u2", Score: 2, TimeTakenSec: 1})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !room.Done() {
		time.Sleep(time.Millisecond)
	}
	reg.DeleteIfEmpty("room-1")
	if _, ok := reg.Get("room-1"); ok {
		t.Fatalf("finished room should be deleted")
	}
}
