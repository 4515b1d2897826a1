package match

import (
	"context"
	"log"
	"sync"

	"quiz-arena/internal/domain"
)

// Room is the arbiter for one two-player match. Room state is never only
// local: joins, leaves and completion reports are published on the room
// channel, and every room applies the signals it observes, so two instances
// serving one participant each converge on the same membership, announce
// match-ready and agree on the verdict. Signals are idempotent; the room
// that first sees the state change makes the announcement, and a duplicate
// from a racing peer is absorbed by the receivers.
type Room struct {
	id      string
	channel RoomChannel
	stop    func()

	mu      sync.Mutex
	players map[string]bool
	reports map[string]domain.CompletionReport
	ready   bool
	done    bool
	verdict *domain.Verdict
}

func NewRoom(id string, channel RoomChannel) *Room {
	return &Room{
		id:      id,
		channel: channel,
		players: make(map[string]bool),
		reports: make(map[string]domain.CompletionReport),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Channel exposes the underlying room channel for subscribers.
func (r *Room) Channel() RoomChannel { return r.channel }

// watch subscribes the room to its own channel and applies peer signals
// until Close. Without it the room only sees its in-process participants.
func (r *Room) watch(ctx context.Context) error {
	msgs, cancel, err := r.channel.Subscribe(ctx)
	if err != nil {
		return err
	}
	r.stop = cancel
	go func() {
		for msg := range msgs {
			r.observe(msg)
		}
	}()
	return nil
}

// Close stops the channel subscription.
func (r *Room) Close() {
	if r.stop != nil {
		r.stop()
	}
}

// observe applies one channel signal. Echoes of the room's own publishes
// land here too; every branch tolerates replay.
func (r *Room) observe(msg Message) {
	switch msg.Type {
	case MsgJoinRoom:
		if msg.SenderID == "" {
			return
		}
		if announce, err := r.admit(msg.SenderID); err == nil && announce {
			r.publish(Message{Type: MsgMatchReady, RoomID: r.id})
		}
	case MsgLeaveRoom:
		r.mu.Lock()
		delete(r.players, msg.SenderID)
		r.mu.Unlock()
	case MsgQuizCompleted:
		if msg.Completion == nil {
			return
		}
		if verdict, decide := r.record(*msg.Completion); decide {
			r.publish(Message{Type: MsgGameOver, RoomID: r.id, Verdict: &verdict})
		}
	case MsgMatchReady:
		r.mu.Lock()
		r.ready = true
		r.mu.Unlock()
	case MsgGameOver:
		r.mu.Lock()
		r.done = true
		if msg.Verdict != nil {
			v := *msg.Verdict
			r.verdict = &v
		}
		r.mu.Unlock()
	}
}

func (r *Room) publish(msg Message) {
	if err := r.channel.Publish(context.Background(), msg); err != nil {
		log.Printf("room %s publish %s: %v", r.id, msg.Type, err)
	}
}

// admit adds a participant if there is space. The second distinct player
// arms the match; announce reports whether this call should say so.
func (r *Room) admit(userID string) (announce bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.players[userID] && len(r.players) >= 2 {
		return false, domain.ErrRoomFull
	}
	r.players[userID] = true
	if len(r.players) == 2 && !r.ready {
		r.ready = true
		return true, nil
	}
	return false, nil
}

// Join admits a participant and tells the peers. Rejoining is idempotent; a
// third distinct user is rejected. When the pair completes, match-ready is
// published.
func (r *Room) Join(ctx context.Context, userID string) error {
	announce, err := r.admit(userID)
	if err != nil {
		return err
	}
	if err := r.channel.Publish(ctx, Message{Type: MsgJoinRoom, RoomID: r.id, SenderID: userID}); err != nil {
		return err
	}
	if announce {
		return r.channel.Publish(ctx, Message{Type: MsgMatchReady, RoomID: r.id})
	}
	return nil
}

// Progress relays a participant's progress to the room. Publish failures
// are returned for logging only; gameplay never depends on delivery.
func (r *Room) Progress(ctx context.Context, p domain.ProgressUpdate) error {
	return r.channel.Publish(ctx, Message{
		Type:     MsgUpdateProgress,
		RoomID:   r.id,
		SenderID: p.UserID,
		Progress: &p,
	})
}

// record stores a completion report. When both participants have reported
// the verdict is computed once; decide reports whether this call should
// publish it.
func (r *Room) record(report domain.CompletionReport) (domain.Verdict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return domain.Verdict{}, false
	}
	r.reports[report.UserID] = report
	if len(r.reports) < 2 {
		return domain.Verdict{}, false
	}
	r.done = true
	v := resolveVerdict(r.reports)
	r.verdict = &v
	return v, true
}

// Complete records a completion report and tells the peers. The room that
// collects the second report publishes game-over.
func (r *Room) Complete(ctx context.Context, report domain.CompletionReport) error {
	verdict, decide := r.record(report)
	if err := r.channel.Publish(ctx, Message{
		Type:       MsgQuizCompleted,
		RoomID:     r.id,
		SenderID:   report.UserID,
		Completion: &report,
	}); err != nil {
		return err
	}
	if decide {
		return r.channel.Publish(ctx, Message{Type: MsgGameOver, RoomID: r.id, Verdict: &verdict})
	}
	return nil
}

// Leave drops a participant on disconnect and tells the peers.
func (r *Room) Leave(ctx context.Context, userID string) {
	r.mu.Lock()
	delete(r.players, userID)
	r.mu.Unlock()
	if err := r.channel.Publish(ctx, Message{Type: MsgLeaveRoom, RoomID: r.id, SenderID: userID}); err != nil {
		log.Printf("room %s publish %s: %v", r.id, MsgLeaveRoom, err)
	}
}

// Empty reports whether nobody is in the room.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) == 0
}

// Ready reports whether the match has been armed. A rejoining participant
// uses it to catch up on a match-ready it missed while disconnected.
func (r *Room) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Done reports whether the verdict has been published.
func (r *Room) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Verdict returns the decided outcome, if any.
func (r *Room) Verdict() (domain.Verdict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verdict == nil {
		return domain.Verdict{}, false
	}
	return *r.verdict, true
}

// resolveVerdict ranks the two reports: higher point score wins, ties fall
// to the faster finisher, a full tie is a draw.
func resolveVerdict(reports map[string]domain.CompletionReport) domain.Verdict {
	var a, b domain.CompletionReport
	first := true
	for _, rep := range reports {
		if first {
			a, first = rep, false
		} else {
			b = rep
		}
	}
	switch {
	case a.Score != b.Score:
		if a.Score > b.Score {
			return domain.Verdict{WinnerID: a.UserID}
		}
		return domain.Verdict{WinnerID: b.UserID}
	case a.TimeTakenSec != b.TimeTakenSec:
		if a.TimeTakenSec < b.TimeTakenSec {
			return domain.Verdict{WinnerID: a.UserID}
		}
		return domain.Verdict{WinnerID: b.UserID}
	default:
		return domain.Verdict{IsDraw: true}
	}
}

// Registry tracks live rooms and creates their channels on demand.
type Registry struct {
	channels ChannelFactory

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry(channels ChannelFactory) *Registry {
	return &Registry{channels: channels, rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for id, creating it and starting its channel
// subscription on first use.
func (g *Registry) GetOrCreate(id string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[id]; ok {
		return room, nil
	}
	room := NewRoom(id, g.channels.Channel(id))
	if err := room.watch(context.Background()); err != nil {
		return nil, err
	}
	g.rooms[id] = room
	return room, nil
}

// Get looks up an existing room.
func (g *Registry) Get(id string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[id]
	return room, ok
}

// DeleteIfEmpty drops the room once everyone has left or the match is done.
func (g *Registry) DeleteIfEmpty(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[id]
	if !ok {
		return
	}
	if room.Empty() || room.Done() {
		room.Close()
		delete(g.rooms, id)
	}
}
