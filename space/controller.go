// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/syntheticmagus/manifold-meeting-space/attendee"
	"github.com/syntheticmagus/manifold-meeting-space/audio"
	"github.com/syntheticmagus/manifold-meeting-space/lib/clock"
	"github.com/syntheticmagus/manifold-meeting-space/lib/event"
	"github.com/syntheticmagus/manifold-meeting-space/metrics"
	"github.com/syntheticmagus/manifold-meeting-space/peer"
	"github.com/syntheticmagus/manifold-meeting-space/pose"
	"github.com/syntheticmagus/manifold-meeting-space/transport"
)

const (
	DefaultPairingTimeout    = 30 * time.Second
	DefaultBroadcastInterval = 100 * time.Millisecond

	registryLeaveTimeout = 5 * time.Second
)

var (
	// ErrAlreadyJoined is returned by Join while Active.
	ErrAlreadyJoined = errors.New("space: already joined")

	// ErrNotIdle is returned by Join while another join or leave is in
	// progress.
	ErrNotIdle = errors.New("space: controller is not idle")

	// ErrJoinAborted is returned by Join when Leave interrupted it.
	ErrJoinAborted = errors.New("space: join aborted by leave")
)

// Registry resolves a space to the identities already in it and records
// the caller as a member. The returned roster excludes id.
type Registry interface {
	Join(ctx context.Context, space, id string) ([]string, error)
}

// Leaver is implemented by registries that accept explicit departures.
type Leaver interface {
	Leave(ctx context.Context, space, id string) error
}

// State is the controller's position in its lifecycle.
type State int

const (
	Idle State = iota
	Joining
	Active
	Leaving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Leaving:
		return "leaving"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config wires a Controller. Opener, Registry, and Audio are required.
type Config struct {
	Opener   transport.Opener
	Registry Registry
	Audio    audio.Source

	// Sink plays remote audio. Nil leaves remote streams unbound.
	Sink audio.Sink

	// Pose supplies the local pose each broadcast tick. Defaults to a
	// camera at eye height.
	Pose pose.Source

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	ConnectTimeout    time.Duration
	PairingTimeout    time.Duration
	BroadcastInterval time.Duration
}

// Controller owns the local attendee's presence in one space at a time.
type Controller struct {
	opener            transport.Opener
	registry          Registry
	audio             audio.Source
	sink              audio.Sink
	pose              pose.Source
	clock             clock.Clock
	logger            *slog.Logger
	metrics           *metrics.Metrics
	connectTimeout    time.Duration
	pairingTimeout    time.Duration
	broadcastInterval time.Duration

	joined event.Observable[*attendee.RemoteAttendee]
	left   event.Observable[*attendee.RemoteAttendee]

	mu            sync.Mutex
	state         State
	generation    uint64
	space         string
	lifetime      context.Context
	cancel        context.CancelFunc
	session       *peer.Session
	stream        transport.LocalStream
	audioStarted  bool
	registered    bool
	attendees     map[transport.Identity]*attendee.RemoteAttendee
	pending       map[transport.Identity]*pairing
	broadcastStop chan struct{}
	broadcastDone chan struct{}

	// joinDone is closed when the running Join call returns.
	joinDone chan struct{}
}

// pairing is a peer whose data channel and media call have not both
// arrived. Outbound pairings wait on media for the peer's call back.
type pairing struct {
	peer     transport.Identity
	outbound bool
	media    chan *peer.MediaChannel
	matched  bool
	cancel   context.CancelFunc
}

// New validates config and returns an Idle controller.
func New(config Config) (*Controller, error) {
	var missing []string
	if config.Opener == nil {
		missing = append(missing, "Opener")
	}
	if config.Registry == nil {
		missing = append(missing, "Registry")
	}
	if config.Audio == nil {
		missing = append(missing, "Audio")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("space: config missing %s", strings.Join(missing, ", "))
	}

	if config.Pose == nil {
		config.Pose = pose.DefaultSource()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = peer.DefaultConnectTimeout
	}
	if config.PairingTimeout <= 0 {
		config.PairingTimeout = DefaultPairingTimeout
	}
	if config.BroadcastInterval <= 0 {
		config.BroadcastInterval = DefaultBroadcastInterval
	}

	return &Controller{
		opener:            config.Opener,
		registry:          config.Registry,
		audio:             config.Audio,
		sink:              config.Sink,
		pose:              config.Pose,
		clock:             config.Clock,
		logger:            config.Logger,
		metrics:           config.Metrics,
		connectTimeout:    config.ConnectTimeout,
		pairingTimeout:    config.PairingTimeout,
		broadcastInterval: config.BroadcastInterval,
		attendees:         make(map[transport.Identity]*attendee.RemoteAttendee),
		pending:           make(map[transport.Identity]*pairing),
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Space returns the joined space name, or "" when Idle.
func (c *Controller) Space() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return ""
	}
	return c.space
}

// ID returns the local identity while a session is open, or "".
func (c *Controller) ID() transport.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID()
}

// Attendees returns the paired attendees sorted by identity.
func (c *Controller) Attendees() []*attendee.RemoteAttendee {
	c.mu.Lock()
	result := make([]*attendee.RemoteAttendee, 0, len(c.attendees))
	for _, a := range c.attendees {
		result = append(result, a)
	}
	c.mu.Unlock()
	slices.SortFunc(result, func(a, b *attendee.RemoteAttendee) int {
		return strings.Compare(string(a.ID()), string(b.ID()))
	})
	return result
}

// Attendee returns the attendee paired with id.
func (c *Controller) Attendee(id transport.Identity) (*attendee.RemoteAttendee, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.attendees[id]
	return a, ok
}

// OnAttendeeJoined publishes each newly paired attendee.
func (c *Controller) OnAttendeeJoined() event.Source[*attendee.RemoteAttendee] { return &c.joined }

// OnAttendeeLeft publishes each attendee after it is disposed, whether
// it disconnected or the controller left.
func (c *Controller) OnAttendeeLeft() event.Source[*attendee.RemoteAttendee] { return &c.left }

// Join enters spaceName. It returns once the roster is known and
// pairings have started; pairings finish in the background and a failed
// pairing only means that peer never appears. Local audio, transport,
// and registry failures abort the join and leave the controller Idle.
func (c *Controller) Join(ctx context.Context, spaceName string) error {
	// A Join interrupted by Leave may still be unwinding a blocked step.
	// Its leftovers are released before a new join starts.
	for {
		c.mu.Lock()
		if c.state != Idle || c.joinDone == nil {
			break
		}
		prior := c.joinDone
		c.mu.Unlock()
		select {
		case <-prior:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	switch c.state {
	case Idle:
	case Active:
		c.mu.Unlock()
		return ErrAlreadyJoined
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotIdle, state)
	}
	c.state = Joining
	c.generation++
	generation := c.generation
	c.space = spaceName
	c.lifetime, c.cancel = context.WithCancel(context.Background())
	lifetime := c.lifetime
	joinDone := make(chan struct{})
	c.joinDone = joinDone
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.joinDone == joinDone {
			c.joinDone = nil
		}
		c.mu.Unlock()
		close(joinDone)
	}()

	// Leave cancels the join's own blocking steps too.
	joinCtx, cancelJoin := context.WithCancel(ctx)
	defer cancelJoin()
	defer context.AfterFunc(lifetime, cancelJoin)()

	logger := c.logger.With("space", spaceName)
	logger.Info("joining space")

	stream, err := c.audio.Start(joinCtx)
	if err != nil {
		return c.abortJoin(fmt.Errorf("starting local audio: %w", err))
	}
	if !c.checkpoint(func() { c.stream, c.audioStarted = stream, true }) {
		c.audio.Stop()
		return c.abortJoin(nil)
	}

	session, err := peer.Create(joinCtx, c.opener, peer.Options{
		Clock:          c.clock,
		Logger:         c.logger,
		ConnectTimeout: c.connectTimeout,
	})
	if err != nil {
		return c.abortJoin(fmt.Errorf("joining %s: %w", spaceName, err))
	}
	if !c.checkpoint(func() { c.session = session }) {
		session.Dispose()
		return c.abortJoin(nil)
	}
	session.IncomingData().Add(func(data *peer.DataChannel) {
		c.handleIncomingData(generation, session, stream, data)
	})
	session.IncomingMedia().Add(func(media *peer.MediaChannel) {
		c.handleIncomingMedia(generation, media)
	})

	localID := session.ID()
	roster, err := c.registry.Join(joinCtx, spaceName, string(localID))
	if err != nil {
		c.metrics.RegistryJoin("error")
		return c.abortJoin(fmt.Errorf("querying registry for %s: %w", spaceName, err))
	}
	c.metrics.RegistryJoin("ok")

	c.mu.Lock()
	active := c.state == Joining
	if active {
		c.registered = true
		c.state = Active
		c.broadcastStop = make(chan struct{})
		c.broadcastDone = make(chan struct{})
		go c.broadcastLoop(c.clock.NewTicker(c.broadcastInterval), c.broadcastStop, c.broadcastDone)
	}
	c.mu.Unlock()
	if !active {
		// Leave's teardown ran before the registry answered.
		c.leaveRegistry(spaceName, localID)
		return c.abortJoin(nil)
	}

	peers := rosterPeers(roster, localID)
	logger.Info("joined space", "id", string(localID), "roster", len(peers))
	for _, id := range peers {
		c.startOutbound(generation, session, stream, id)
	}
	return nil
}

// rosterPeers drops the local identity, blanks, and duplicates.
func rosterPeers(roster []string, localID transport.Identity) []transport.Identity {
	seen := make(map[transport.Identity]bool, len(roster))
	peers := make([]transport.Identity, 0, len(roster))
	for _, entry := range roster {
		id := transport.Identity(entry)
		if id == "" || id == localID || seen[id] {
			continue
		}
		seen[id] = true
		peers = append(peers, id)
	}
	return peers
}

// checkpoint runs store while the controller is still Joining, so
// Leave's teardown sees the resource. It reports false when a Leave has
// arrived and store was not run.
func (c *Controller) checkpoint(store func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Joining {
		return false
	}
	store()
	return true
}

// abortJoin tears down whatever Join stored, unless a Leave already
// did. A Leave that arrived during the join turns the result into
// ErrJoinAborted.
func (c *Controller) abortJoin(cause error) error {
	c.mu.Lock()
	interrupted := c.state != Joining
	if !interrupted {
		c.state = Leaving
	}
	c.mu.Unlock()

	if !interrupted {
		c.teardown()
	}
	switch {
	case interrupted && cause != nil:
		return fmt.Errorf("%w: %w", ErrJoinAborted, cause)
	case interrupted:
		return ErrJoinAborted
	default:
		c.logger.Warn("join failed", "error", cause)
		return cause
	}
}

// Leave disposes every attendee and the session, stops local audio, and
// tells the registry when it can be told. Idempotent. During a Join it
// cancels the join's blocking step and releases everything the join has
// acquired so far; the join disposes anything it acquires afterwards.
func (c *Controller) Leave() {
	c.mu.Lock()
	switch c.state {
	case Active, Joining:
		c.state = Leaving
		c.cancel()
		c.mu.Unlock()
		c.teardown()
	default:
		c.mu.Unlock()
	}
}

// teardown releases everything the current join acquired and returns
// the controller to Idle. Only the goroutine that moved the state to
// Leaving calls it.
func (c *Controller) teardown() {
	c.mu.Lock()
	attendees := make([]*attendee.RemoteAttendee, 0, len(c.attendees))
	for _, a := range c.attendees {
		attendees = append(attendees, a)
	}
	c.attendees = make(map[transport.Identity]*attendee.RemoteAttendee)
	pending := c.pending
	c.pending = make(map[transport.Identity]*pairing)
	session := c.session
	audioStarted := c.audioStarted
	registered := c.registered
	stop, done := c.broadcastStop, c.broadcastDone
	cancel := c.cancel
	spaceName := c.space
	c.session, c.stream = nil, nil
	c.audioStarted, c.registered = false, false
	c.broadcastStop, c.broadcastDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stop != nil {
		close(stop)
		<-done
	}
	for _, p := range pending {
		p.cancel()
		p.closeUnclaimedMedia()
	}
	for _, a := range attendees {
		a.Dispose()
		c.metrics.AttendeeLeft()
		c.left.Notify(a)
	}

	var localID transport.Identity
	if session != nil {
		localID = session.ID()
		session.Dispose()
	}
	if audioStarted {
		c.audio.Stop()
	}
	if registered {
		c.leaveRegistry(spaceName, localID)
	}

	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()
	c.logger.Info("left space", "space", spaceName, "attendees", len(attendees))
}

func (c *Controller) leaveRegistry(spaceName string, id transport.Identity) {
	leaver, ok := c.registry.(Leaver)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), registryLeaveTimeout)
	defer cancel()
	if err := leaver.Leave(ctx, spaceName, string(id)); err != nil {
		c.logger.Warn("registry leave failed", "space", spaceName, "error", err)
	}
}

// liveLocked reports whether generation is still the current join and
// the controller is accepting pairings. Caller holds mu.
func (c *Controller) liveLocked(generation uint64) bool {
	return c.generation == generation && (c.state == Joining || c.state == Active)
}
