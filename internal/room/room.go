// Package room runs one actor goroutine per game room. Every join, leave, game action and
// sweep for a room passes through its inbox, so the room's state is only ever touched by
// that goroutine.
package room

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/songline-backend/internal/engine"
	"github.com/DoyleJ11/songline-backend/internal/session"
	"github.com/DoyleJ11/songline-backend/internal/store"
	"github.com/DoyleJ11/songline-backend/internal/types"
)

const storeTimeout = 3 * time.Second

var (
	ErrRoomClosed = errors.New("room closed")
	ErrNotHost    = errors.New("only the host can do that")
	ErrForbidden  = errors.New("not allowed to act for that player")
	ErrNotJoined  = errors.New("connection is not in this room")
	ErrInternal   = errors.New("internal error")
)

const (
	CodeRoomClosed = "ROOM_CLOSED"
	CodeNotHost    = "NOT_HOST"
	CodeForbidden  = "FORBIDDEN"
	CodeNotJoined  = "NOT_JOINED"
)

// CodeOf maps room and engine errors to the code sent to clients.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrRoomClosed):
		return CodeRoomClosed
	case errors.Is(err, ErrNotHost):
		return CodeNotHost
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotJoined):
		return CodeNotJoined
	}
	return string(engine.CodeOf(err))
}

type Deps struct {
	Index  *session.Index
	Store  store.Store
	Logger *zap.Logger
	Clock  clockwork.Clock
}

type Config struct {
	ID   string
	Key  string
	Mode engine.Mode
	// OnClosed runs on the room goroutine once the room has been deleted.
	OnClosed func(roomID string)
}

type Member struct {
	PlayerID       engine.PlayerID
	Name           string
	Avatar         string
	ConnID         string
	Connected      bool
	JoinedAt       time.Time
	DisconnectedAt time.Time
}

type View struct {
	ID        string
	Key       string
	CreatedAt time.Time
	Version   int
	Members   []Member
	State     engine.State
}

type Room struct {
	id        string
	key       string
	createdAt time.Time
	onClosed  func(string)

	inbox   chan Msg
	state   engine.State
	version int
	members []Member

	idx   *session.Index
	store store.Store
	log   *zap.Logger
	clock clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, cfg Config, deps Deps) *Room {
	r := newRoom(parent, cfg, deps)
	r.state = engine.NewGame(cfg.Mode)
	r.createdAt = r.clock.Now()
	go r.loop()
	return r
}

// Restore rebuilds a room from a stored snapshot. Every member starts out disconnected.
func Restore(parent context.Context, snap store.Snapshot, onClosed func(string), deps Deps) *Room {
	r := newRoom(parent, Config{ID: snap.RoomID, Key: snap.RoomKey, Mode: snap.Game.Mode, OnClosed: onClosed}, deps)
	r.state = snap.Game
	r.version = snap.Version
	r.createdAt = snap.CreatedAt
	now := r.clock.Now()
	for _, m := range snap.Members {
		left := now
		if m.DisconnectedAt != nil {
			left = *m.DisconnectedAt
		}
		r.members = append(r.members, Member{
			PlayerID:       m.PlayerID,
			Name:           m.Name,
			Avatar:         m.Avatar,
			JoinedAt:       m.JoinedAt,
			DisconnectedAt: left,
		})
	}
	go r.loop()
	return r
}

func newRoom(parent context.Context, cfg Config, deps Deps) *Room {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Store == nil {
		deps.Store = store.NewMemory()
	}
	return &Room{
		id:       cfg.ID,
		key:      cfg.Key,
		onClosed: cfg.OnClosed,
		inbox:    make(chan Msg, 64),
		idx:      deps.Index,
		store:    deps.Store,
		log:      deps.Logger.With(zap.String("room_id", cfg.ID), zap.String("room_key", cfg.Key)),
		clock:    deps.Clock,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (r *Room) ID() string  { return r.id }
func (r *Room) Key() string { return r.key }

// Done is closed once the room goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case m := <-r.inbox:
			if stop := r.handle(m); stop {
				r.cancel()
				return
			}
		}
	}
}

func (r *Room) handle(m Msg) (stop bool) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("room message panicked", zap.Any("panic", p), zap.Stack("stack"))
			abandon(m)
			stop = false
		}
	}()

	switch msg := m.(type) {
	case AttachHost:
		msg.reply(r.attachHost(msg.ConnID))
	case Join:
		err := r.join(msg.ConnID, msg.Name, msg.Avatar)
		if err != nil {
			r.sendError(msg.ConnID, err)
		}
		msg.reply(err)
	case Leave:
		err := r.leave(msg.ConnID, msg.PlayerID)
		if err != nil {
			r.sendError(msg.ConnID, err)
		}
		msg.reply(err)
	case Disconnect:
		msg.reply(r.disconnect(msg.ConnID))
	case Action:
		if msg.Msg.Type == types.MsgCloseRoom {
			if err := r.authorizeHost(msg.ConnID); err != nil {
				r.sendError(msg.ConnID, err)
				msg.reply(err)
				return false
			}
			r.close("closed by host")
			msg.reply(nil)
			return true
		}
		err := r.action(msg.ConnID, msg.Msg)
		if err != nil {
			r.sendError(msg.ConnID, err)
		}
		msg.reply(err)
	case Sweep:
		n := r.sweep(msg.Now, msg.Timeout)
		if msg.Reply != nil {
			msg.Reply <- n
		}
	case CloseIfEmpty:
		closed := r.closeIfEmpty(msg.Now, msg.MaxAge)
		if msg.Reply != nil {
			msg.Reply <- closed
		}
		return closed
	case Close:
		r.close(msg.Reason)
		if msg.Reply != nil {
			close(msg.Reply)
		}
		return true
	case GetState:
		msg.Reply <- r.view()
	case Shutdown:
		return true
	}
	return false
}

func (r *Room) attachHost(connID string) error {
	r.idx.BindHost(connID, r.id)
	r.sendTo(connID, types.RoomCreated(r.key, r.id))
	r.persist()
	r.broadcast()
	return nil
}

// join resolves, in order: a repeated join from the same connection, a reconnection by
// name and avatar, and a brand new player. Leaving another room is the hub's job.
func (r *Room) join(connID, name, avatar string) error {
	b, bound := r.idx.Lookup(connID)
	boundHere := bound && b.RoomID == r.id && b.PlayerID != ""
	match := r.memberByIdentity(name, avatar)

	if boundHere && match >= 0 && r.members[match].PlayerID == b.PlayerID {
		r.sendTo(connID, types.Joined(b.PlayerID, r.key, r.roster()))
		r.broadcast()
		return nil
	}

	state := r.state
	members := append([]Member(nil), r.members...)
	var evicted engine.PlayerID
	if boundHere {
		// a connection speaks for one player at a time
		evicted = b.PlayerID
		state = removeFromGame(state, evicted)
		members = withoutMember(members, evicted)
	}

	now := r.clock.Now()
	var playerID engine.PlayerID
	var staleConn string
	if i := indexOfIdentity(members, name, avatar); i >= 0 {
		playerID = members[i].PlayerID
		if members[i].ConnID != connID {
			staleConn = members[i].ConnID
		}
		members[i].ConnID = connID
		members[i].Connected = true
		members[i].DisconnectedAt = time.Time{}
	} else {
		playerID = engine.PlayerID(uuid.NewString())
		next, err := engine.Join(state, engine.Player{ID: playerID, Name: name, Avatar: avatar})
		if err != nil {
			return err
		}
		state = next
		members = append(members, Member{
			PlayerID:  playerID,
			Name:      name,
			Avatar:    avatar,
			ConnID:    connID,
			Connected: true,
			JoinedAt:  now,
		})
	}

	r.state = state
	r.members = members
	if staleConn != "" {
		r.idx.UnbindPlayer(staleConn)
	}
	r.idx.Bind(connID, r.id, playerID)
	r.version++
	if evicted != "" {
		r.log.Info("player displaced by rebinding connection",
			zap.String("player_id", string(evicted)), zap.String("conn_id", connID))
	}
	r.log.Info("player joined", zap.String("player_id", string(playerID)), zap.String("conn_id", connID))

	r.persist()
	r.sendTo(connID, types.Joined(playerID, r.key, r.roster()))
	r.broadcast(staleConn)
	return nil
}

// leave removes a player for good. An empty playerID means the caller's own player; the host
// may name anyone. Connections that cannot be resolved to a player are ignored.
func (r *Room) leave(connID string, playerID engine.PlayerID) error {
	b, ok := r.idx.Lookup(connID)
	if !ok || b.RoomID != r.id {
		return nil
	}
	if playerID == "" {
		playerID = b.PlayerID
	}
	if playerID == "" {
		return nil
	}
	if playerID != b.PlayerID && !b.Host {
		return ErrForbidden
	}
	i := r.memberIndex(playerID)
	if i < 0 {
		return nil
	}

	gone := r.members[i]
	r.state = removeFromGame(r.state, playerID)
	r.members = withoutMember(r.members, playerID)
	if gone.ConnID != "" {
		r.idx.UnbindPlayer(gone.ConnID)
	}
	r.version++
	r.log.Info("player left", zap.String("player_id", string(playerID)))

	r.persist()
	r.broadcast(gone.ConnID)
	return nil
}

// disconnect handles a closed transport. The player keeps their seat so they can come back.
func (r *Room) disconnect(connID string) error {
	b, ok := r.idx.Lookup(connID)
	if !ok || b.RoomID != r.id {
		return nil
	}
	r.idx.Unbind(connID)

	i := -1
	if b.PlayerID != "" {
		i = r.memberIndex(b.PlayerID)
	}
	if i < 0 || r.members[i].ConnID != connID {
		if b.Host {
			r.log.Info("host disconnected", zap.String("conn_id", connID))
		}
		return nil
	}

	r.members[i].ConnID = ""
	r.members[i].Connected = false
	r.members[i].DisconnectedAt = r.clock.Now()
	r.version++
	r.log.Info("player disconnected", zap.String("player_id", string(b.PlayerID)))

	r.persist()
	r.broadcast()
	return nil
}

func (r *Room) action(connID string, m types.ClientMessage) error {
	b, ok := r.idx.Lookup(connID)
	if !ok || b.RoomID != r.id {
		return ErrNotJoined
	}

	var cmd engine.Command
	switch m.Type {
	case types.MsgStartRound:
		cmd = engine.Command{Type: engine.CmdStartRound, Card: engine.Card{TrackURI: m.TrackURI}, PlayerID: engine.PlayerID(m.PlayerID)}
	case types.MsgReveal:
		cmd = engine.Command{Type: engine.CmdReveal, Year: derefInt(m.Year)}
	case types.MsgAwardToken:
		cmd = engine.Command{Type: engine.CmdAwardToken, PlayerID: engine.PlayerID(m.PlayerID)}
	case types.MsgPlaceCard:
		cmd = engine.Command{Type: engine.CmdPlaceCard, PlayerID: engine.PlayerID(m.PlayerID), SlotIndex: derefInt(m.SlotIndex)}
	case types.MsgChallenge:
		cmd = engine.Command{
			Type:      engine.CmdChallenge,
			PlayerID:  engine.PlayerID(m.ChallengerID),
			TargetID:  engine.PlayerID(m.TargetID),
			SlotIndex: derefInt(m.SlotIndex),
		}
	case types.MsgSkipCard:
		cmd = engine.Command{Type: engine.CmdSkipCard, PlayerID: engine.PlayerID(m.PlayerID), Card: engine.Card{TrackURI: m.TrackURI}}
	default:
		return engine.ErrUnsupportedCommand
	}

	switch cmd.Type {
	case engine.CmdStartRound, engine.CmdReveal, engine.CmdAwardToken:
		if !b.Host {
			return ErrNotHost
		}
	default:
		if !b.Host && cmd.PlayerID != b.PlayerID {
			return ErrForbidden
		}
	}

	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		return err
	}
	r.state = next
	r.version++
	for _, e := range events {
		r.log.Debug("game event", zap.String("event", string(e.Type)), zap.String("player_id", string(e.PlayerID)))
	}
	if engine.ContainsEvent(events, engine.EvtGameCompleted) {
		r.log.Info("game completed", zap.String("winner", string(*next.Winner)))
	}

	r.persist()
	r.broadcast()
	return nil
}

// sweep evicts players who have been gone longer than timeout, but only before the game starts.
func (r *Room) sweep(now time.Time, timeout time.Duration) int {
	if r.state.Status != engine.StatusLobby {
		return 0
	}
	var stale []engine.PlayerID
	for _, m := range r.members {
		if !m.Connected && !m.DisconnectedAt.IsZero() && now.Sub(m.DisconnectedAt) > timeout {
			stale = append(stale, m.PlayerID)
		}
	}
	if len(stale) == 0 {
		return 0
	}
	for _, id := range stale {
		r.state = removeFromGame(r.state, id)
		r.members = withoutMember(r.members, id)
	}
	r.version++
	r.log.Info("evicted disconnected players", zap.Int("count", len(stale)))

	r.persist()
	r.broadcast()
	return len(stale)
}

func (r *Room) closeIfEmpty(now time.Time, maxAge time.Duration) bool {
	if len(r.state.Players) > 0 || now.Sub(r.createdAt) <= maxAge {
		return false
	}
	r.close("room expired")
	return true
}

// close tells every connection, drops the bindings and the stored snapshot.
func (r *Room) close(reason string) {
	msg := types.RoomClosed(r.key, reason)
	for _, c := range r.idx.Connections(r.id) {
		r.send(c, msg)
	}
	r.idx.DropRoom(r.id)

	ctx, cancel := r.storeContext()
	defer cancel()
	if err := r.store.Delete(ctx, r.id); err != nil {
		r.log.Warn("delete snapshot failed", zap.Error(err))
	}
	r.log.Info("room closed", zap.String("reason", reason))
	if r.onClosed != nil {
		r.onClosed(r.id)
	}
}

func (r *Room) authorizeHost(connID string) error {
	b, ok := r.idx.Lookup(connID)
	if !ok || b.RoomID != r.id {
		return ErrNotJoined
	}
	if !b.Host {
		return ErrNotHost
	}
	return nil
}

func (r *Room) persist() {
	ctx, cancel := r.storeContext()
	defer cancel()
	if err := r.store.Save(ctx, r.snapshot()); err != nil {
		r.log.Warn("save snapshot failed", zap.Error(err), zap.Int("version", r.version))
	}
}

func (r *Room) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.ctx), storeTimeout)
}

func (r *Room) snapshot() store.Snapshot {
	members := make([]store.Member, 0, len(r.members))
	for _, m := range r.members {
		sm := store.Member{PlayerID: m.PlayerID, Name: m.Name, Avatar: m.Avatar, JoinedAt: m.JoinedAt}
		if !m.Connected && !m.DisconnectedAt.IsZero() {
			left := m.DisconnectedAt
			sm.DisconnectedAt = &left
		}
		members = append(members, sm)
	}
	return store.Snapshot{
		RoomID:    r.id,
		RoomKey:   r.key,
		CreatedAt: r.createdAt,
		Members:   members,
		Game:      r.state,
		Version:   r.version,
	}
}

func (r *Room) view() View {
	return View{
		ID:        r.id,
		Key:       r.key,
		CreatedAt: r.createdAt,
		Version:   r.version,
		Members:   append([]Member(nil), r.members...),
		State:     r.state,
	}
}

func (r *Room) roster() []types.RosterEntry {
	out := make([]types.RosterEntry, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, types.RosterEntry{
			PlayerID:  m.PlayerID,
			Name:      m.Name,
			Avatar:    m.Avatar,
			Connected: m.Connected,
		})
	}
	return out
}

func (r *Room) memberIndex(id engine.PlayerID) int {
	for i, m := range r.members {
		if m.PlayerID == id {
			return i
		}
	}
	return -1
}

func (r *Room) memberByIdentity(name, avatar string) int {
	return indexOfIdentity(r.members, name, avatar)
}

func indexOfIdentity(members []Member, name, avatar string) int {
	for i, m := range members {
		if m.Name == name && m.Avatar == avatar {
			return i
		}
	}
	return -1
}

func withoutMember(members []Member, id engine.PlayerID) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.PlayerID != id {
			out = append(out, m)
		}
	}
	return out
}

// removeFromGame drops the player from the engine roster if they are still on it.
func removeFromGame(s engine.State, id engine.PlayerID) engine.State {
	next, err := engine.RemovePlayer(s, id)
	if err != nil {
		return s
	}
	return next
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
