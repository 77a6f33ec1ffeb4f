// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Compile-time interface checks.
var (
	_ Endpoint  = (*WebRTCTransport)(nil)
	_ DataLink  = (*rtcDataLink)(nil)
	_ MediaLink = (*rtcMediaLink)(nil)
)

// iceGatherTimeout is the maximum time to wait for ICE candidate gathering
// to complete before sending the SDP.
const iceGatherTimeout = 15 * time.Second

// dataChannelLabel names the single data channel of every data link.
const dataChannelLabel = "data"

// errConnectionFailed is reported when ICE or DTLS gives up on a link.
var errConnectionFailed = errors.New("transport: peer connection failed")

// WebRTCConfig configures a WebRTCTransport.
type WebRTCConfig struct {
	ICE    ICEConfig
	Logger *slog.Logger
}

// WebRTCTransport is an Endpoint built on pion/webrtc. Every link,
// data or media, gets its own PeerConnection, so the two links between
// a pair of attendees negotiate and fail independently.
//
// Connection establishment uses vanilla ICE: all candidates are
// gathered before the SDP is signaled, so each link costs exactly one
// offer/answer round trip through the Signaler.
type WebRTCTransport struct {
	signaler Signaler
	id       Identity
	api      *webrtc.API
	logger   *slog.Logger

	// iceConfig is protected by configMu so that TURN credentials can be
	// rotated while links exist.
	configMu  sync.RWMutex
	iceConfig ICEConfig

	// links maps peer + "/" + connection id to the link. Protected by mu.
	mu           sync.Mutex
	links        map[string]*rtcLink
	onConnection func(DataLink)
	onCall       func(MediaLink)

	closed    chan struct{}
	closeOnce sync.Once
}

// WebRTCOpener returns an Opener that dials a fresh signaler and opens a
// WebRTCTransport on it.
func WebRTCOpener(dial func(ctx context.Context) (Signaler, error), config WebRTCConfig) Opener {
	return func(ctx context.Context) (Endpoint, error) {
		signaler, err := dial(ctx)
		if err != nil {
			return nil, err
		}
		return Open(ctx, signaler, config)
	}
}

// Open registers with signaler and returns a transport serving the
// assigned identity. The transport owns signaler and closes it on Close,
// including when Open fails.
func Open(ctx context.Context, signaler Signaler, config WebRTCConfig) (*WebRTCTransport, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api, err := newAPI()
	if err != nil {
		signaler.Close()
		return nil, err
	}

	id, err := signaler.Open(ctx)
	if err != nil {
		signaler.Close()
		return nil, fmt.Errorf("registering with signaling service: %w", err)
	}

	wt := &WebRTCTransport{
		signaler:  signaler,
		id:        id,
		api:       api,
		logger:    logger.With("endpoint", string(id)),
		iceConfig: config.ICE,
		links:     make(map[string]*rtcLink),
		closed:    make(chan struct{}),
	}
	go wt.dispatch()

	wt.logger.Info("WebRTC endpoint open")
	return wt, nil
}

// newAPI builds the pion API shared by every PeerConnection of one
// transport: default codecs (Opus among them) and loopback candidates
// so that peers on the same machine, and tests, can connect.
func newAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering codecs: %w", err)
	}
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
	), nil
}

// ID returns the identity assigned by the signaling service.
func (wt *WebRTCTransport) ID() Identity { return wt.id }

// OnConnection sets the handler for inbound data links.
func (wt *WebRTCTransport) OnConnection(handler func(DataLink)) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	wt.onConnection = handler
}

// OnCall sets the handler for inbound calls.
func (wt *WebRTCTransport) OnCall(handler func(MediaLink)) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	wt.onCall = handler
}

// UpdateICEConfig replaces the ICE configuration for new links.
// Existing PeerConnections keep their current configuration.
func (wt *WebRTCTransport) UpdateICEConfig(config ICEConfig) {
	wt.configMu.Lock()
	defer wt.configMu.Unlock()
	wt.iceConfig = config
}

// Connect opens a data link to peer. The offer is gathered and signaled
// in the background.
func (wt *WebRTCTransport) Connect(peer Identity) (DataLink, error) {
	if wt.isClosed() {
		return nil, ErrClosed
	}
	link, err := wt.newLink(peer, uuid.NewString(), KindData)
	if err != nil {
		return nil, err
	}
	data := &rtcDataLink{rtcLink: link}

	ordered := true
	channel, err := link.connection.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		link.connection.Close()
		return nil, fmt.Errorf("creating data channel to %s: %w", peer, err)
	}
	data.attach(channel)

	wt.register(link)
	go wt.offer(link)
	return data, nil
}

// Call places a media call to peer carrying stream.
func (wt *WebRTCTransport) Call(peer Identity, stream LocalStream) (MediaLink, error) {
	if wt.isClosed() {
		return nil, ErrClosed
	}
	link, err := wt.newLink(peer, uuid.NewString(), KindMedia)
	if err != nil {
		return nil, err
	}
	media := newMediaLink(link, false, "")

	if err := media.addStream(stream); err != nil {
		link.connection.Close()
		return nil, fmt.Errorf("calling %s: %w", peer, err)
	}

	wt.register(link)
	go wt.offer(link)
	return media, nil
}

// Close closes every link, telling each peer, then leaves signaling.
func (wt *WebRTCTransport) Close() error {
	first := false
	wt.closeOnce.Do(func() {
		close(wt.closed)
		first = true
	})
	if !first {
		return nil
	}

	wt.mu.Lock()
	links := make([]*rtcLink, 0, len(wt.links))
	for _, link := range wt.links {
		links = append(links, link)
	}
	wt.mu.Unlock()

	for _, link := range links {
		wt.signal(link.byeMessage())
		link.shutdown(false, nil)
	}
	err := wt.signaler.Close()
	wt.logger.Info("WebRTC endpoint closed", "links", len(links))
	return err
}

func (wt *WebRTCTransport) isClosed() bool {
	select {
	case <-wt.closed:
		return true
	default:
		return false
	}
}

// newLink creates a PeerConnection and the shared link state around it.
// The link is not yet registered.
func (wt *WebRTCTransport) newLink(peer Identity, connectionID string, kind LinkKind) (*rtcLink, error) {
	wt.configMu.RLock()
	configuration := webrtc.Configuration{ICEServers: wt.iceConfig.Servers}
	wt.configMu.RUnlock()

	connection, err := wt.api.NewPeerConnection(configuration)
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}
	link := &rtcLink{
		transport:    wt,
		connectionID: connectionID,
		peer:         peer,
		kind:         kind,
		connection:   connection,
	}
	connection.OnConnectionStateChange(link.handleConnectionState)
	return link, nil
}

func linkKey(peer Identity, connectionID string) string {
	return string(peer) + "/" + connectionID
}

func (wt *WebRTCTransport) register(link *rtcLink) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	wt.links[linkKey(link.peer, link.connectionID)] = link
}

func (wt *WebRTCTransport) forget(link *rtcLink) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	key := linkKey(link.peer, link.connectionID)
	if current, ok := wt.links[key]; ok && current == link {
		delete(wt.links, key)
	}
}

func (wt *WebRTCTransport) lookup(peer Identity, connectionID string) *rtcLink {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	return wt.links[linkKey(peer, connectionID)]
}

// signal sends message, logging failures. Returns the send error.
func (wt *WebRTCTransport) signal(message SignalMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), signalWriteTimeout)
	defer cancel()
	message.Source = wt.id
	if err := wt.signaler.Send(ctx, message); err != nil {
		wt.logger.Warn("sending signal failed",
			"type", message.Type,
			"peer", string(message.Destination),
			"error", err,
		)
		return err
	}
	return nil
}

// dispatch routes inbound signaling until the signaler closes.
func (wt *WebRTCTransport) dispatch() {
	for message := range wt.signaler.Messages() {
		switch message.Type {
		case SignalOffer:
			switch message.Kind {
			case KindData:
				go wt.acceptData(message)
			case KindMedia:
				go wt.acceptCall(message)
			default:
				wt.logger.Warn("ignoring offer of unknown kind",
					"peer", string(message.Source),
					"kind", message.Kind,
				)
			}

		case SignalAnswer:
			if link := wt.lookup(message.Source, message.ConnectionID); link != nil {
				go link.applyAnswer(message.SDP)
			}

		case SignalBye:
			if link := wt.lookup(message.Source, message.ConnectionID); link != nil {
				wt.logger.Debug("peer closed link",
					"peer", string(message.Source),
					"kind", link.kind,
				)
				link.shutdown(false, nil)
			}

		case SignalUnavailable:
			// The service echoes the unreachable peer in Source.
			if link := wt.lookup(message.Source, message.ConnectionID); link != nil {
				link.shutdown(false, fmt.Errorf("%w: %s", ErrPeerUnreachable, message.Source))
			}
		}
	}
	if !wt.isClosed() {
		wt.logger.Warn("signaling connection lost; established links continue, new links will fail")
	}
}

// offer negotiates the local side of an outbound link and signals it.
func (wt *WebRTCTransport) offer(link *rtcLink) {
	sdp, err := wt.gather(link.connection, false)
	if err != nil {
		link.shutdown(false, fmt.Errorf("offering %s link to %s: %w", link.kind, link.peer, err))
		return
	}
	if err := wt.signal(SignalMessage{
		Type:         SignalOffer,
		Destination:  link.peer,
		ConnectionID: link.connectionID,
		Kind:         link.kind,
		SDP:          sdp,
	}); err != nil {
		link.shutdown(false, fmt.Errorf("signaling offer to %s: %w", link.peer, err))
		return
	}
	wt.logger.Debug("offer sent", "peer", string(link.peer), "kind", link.kind)
}

// acceptData answers an inbound data offer. The link is handed to the
// connection handler before answering so the handler sees it connecting.
func (wt *WebRTCTransport) acceptData(message SignalMessage) {
	if wt.isClosed() {
		return
	}
	link, err := wt.newLink(message.Source, message.ConnectionID, KindData)
	if err != nil {
		wt.logger.Error("accepting data link failed", "peer", string(message.Source), "error", err)
		return
	}
	data := &rtcDataLink{rtcLink: link}
	link.connection.OnDataChannel(func(channel *webrtc.DataChannel) {
		if channel.Label() != dataChannelLabel {
			channel.Close()
			return
		}
		data.attach(channel)
	})
	wt.register(link)

	wt.mu.Lock()
	handler := wt.onConnection
	wt.mu.Unlock()
	if handler == nil {
		wt.logger.Warn("no connection handler; refusing data link", "peer", string(message.Source))
		data.Close()
		return
	}
	handler(data)

	if err := link.connection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  message.SDP,
	}); err != nil {
		link.shutdown(true, fmt.Errorf("setting remote offer: %w", err))
		return
	}
	wt.answer(link)
}

// acceptCall surfaces an inbound media offer. Negotiation waits for
// MediaLink.Answer.
func (wt *WebRTCTransport) acceptCall(message SignalMessage) {
	if wt.isClosed() {
		return
	}
	link, err := wt.newLink(message.Source, message.ConnectionID, KindMedia)
	if err != nil {
		wt.logger.Error("accepting call failed", "peer", string(message.Source), "error", err)
		return
	}
	media := newMediaLink(link, true, message.SDP)
	wt.register(link)

	wt.mu.Lock()
	handler := wt.onCall
	wt.mu.Unlock()
	if handler == nil {
		wt.logger.Warn("no call handler; refusing call", "peer", string(message.Source))
		media.Close()
		return
	}
	handler(media)
}

// answer gathers and signals the answer for a link whose remote offer
// is already set.
func (wt *WebRTCTransport) answer(link *rtcLink) {
	sdp, err := wt.gather(link.connection, true)
	if err != nil {
		link.shutdown(true, fmt.Errorf("answering %s link from %s: %w", link.kind, link.peer, err))
		return
	}
	if err := wt.signal(SignalMessage{
		Type:         SignalAnswer,
		Destination:  link.peer,
		ConnectionID: link.connectionID,
		Kind:         link.kind,
		SDP:          sdp,
	}); err != nil {
		link.shutdown(false, fmt.Errorf("signaling answer to %s: %w", link.peer, err))
		return
	}
	wt.logger.Debug("answer sent", "peer", string(link.peer), "kind", link.kind)
}

// gather creates the local description and waits for ICE gathering to
// finish, returning the complete SDP.
func (wt *WebRTCTransport) gather(connection *webrtc.PeerConnection, answer bool) (string, error) {
	var description webrtc.SessionDescription
	var err error
	if answer {
		description, err = connection.CreateAnswer(nil)
	} else {
		description, err = connection.CreateOffer(nil)
	}
	if err != nil {
		return "", fmt.Errorf("creating SDP: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(connection)
	if err := connection.SetLocalDescription(description); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		return "", fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-wt.closed:
		return "", ErrClosed
	}
	return connection.LocalDescription().SDP, nil
}

// rtcLink is the state shared by data and media links.
type rtcLink struct {
	Lifecycle

	transport    *WebRTCTransport
	connectionID string
	peer         Identity
	kind         LinkKind
	connection   *webrtc.PeerConnection

	torn atomic.Bool
}

func (l *rtcLink) Peer() Identity              { return l.peer }
func (l *rtcLink) OnOpen(handler func())       { l.SetOnOpen(handler) }
func (l *rtcLink) OnClose(handler func())      { l.SetOnClose(handler) }
func (l *rtcLink) OnError(handler func(error)) { l.SetOnError(handler) }

// Close tears the link down and tells the peer.
func (l *rtcLink) Close() error {
	l.shutdown(true, nil)
	return nil
}

func (l *rtcLink) byeMessage() SignalMessage {
	return SignalMessage{
		Type:         SignalBye,
		Destination:  l.peer,
		ConnectionID: l.connectionID,
		Kind:         l.kind,
	}
}

// shutdown releases the PeerConnection once and terminates the
// lifecycle, with cause reported through OnError when non-nil. Safe to
// re-enter from pion callbacks fired by the close itself.
func (l *rtcLink) shutdown(notifyPeer bool, cause error) {
	if l.torn.CompareAndSwap(false, true) {
		l.transport.forget(l)
		if notifyPeer && !l.transport.isClosed() {
			go l.transport.signal(l.byeMessage())
		}
		if cause != nil {
			l.transport.logger.Warn("link failed",
				"peer", string(l.peer),
				"kind", l.kind,
				"error", cause,
			)
		}
		if err := l.connection.Close(); err != nil {
			l.transport.logger.Debug("closing PeerConnection", "peer", string(l.peer), "error", err)
		}
	}
	if cause != nil {
		l.Fail(cause)
	} else {
		l.MarkClosed()
	}
}

func (l *rtcLink) handleConnectionState(state webrtc.PeerConnectionState) {
	l.transport.logger.Debug("connection state change",
		"peer", string(l.peer),
		"kind", l.kind,
		"state", state.String(),
	)
	switch state {
	case webrtc.PeerConnectionStateConnected:
		// Data links open with their data channel instead.
		if l.kind == KindMedia {
			l.MarkOpen()
		}
	case webrtc.PeerConnectionStateFailed:
		l.shutdown(true, errConnectionFailed)
	case webrtc.PeerConnectionStateClosed:
		l.shutdown(false, nil)
	}
}

func (l *rtcLink) applyAnswer(sdp string) {
	if err := l.connection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		l.shutdown(true, fmt.Errorf("setting remote answer: %w", err))
	}
}

// rtcDataLink carries payloads over one ordered data channel.
type rtcDataLink struct {
	*rtcLink

	channelMu sync.Mutex
	channel   *webrtc.DataChannel
	messages  Inbox[[]byte]
}

func (l *rtcDataLink) attach(channel *webrtc.DataChannel) {
	l.channelMu.Lock()
	l.channel = channel
	l.channelMu.Unlock()

	channel.OnOpen(func() { l.MarkOpen() })
	channel.OnMessage(func(message webrtc.DataChannelMessage) {
		l.messages.Deliver(message.Data)
	})
	channel.OnClose(func() { l.shutdown(false, nil) })
	channel.OnError(func(err error) { l.shutdown(false, err) })
}

func (l *rtcDataLink) OnMessage(handler func([]byte)) { l.messages.SetHandler(handler) }

// Send writes payload to the data channel. Fails unless the link is open.
func (l *rtcDataLink) Send(payload []byte) error {
	if !l.IsOpen() {
		return fmt.Errorf("data link to %s: %w", l.peer, ErrClosed)
	}
	l.channelMu.Lock()
	channel := l.channel
	l.channelMu.Unlock()
	return channel.Send(payload)
}

// rtcMediaLink is one audio call.
type rtcMediaLink struct {
	*rtcLink

	inbound  bool
	offer    string
	answered atomic.Bool
	streams  Inbox[RemoteStream]
}

func newMediaLink(link *rtcLink, inbound bool, offer string) *rtcMediaLink {
	media := &rtcMediaLink{rtcLink: link, inbound: inbound, offer: offer}
	link.connection.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		media.streams.Deliver(remoteTrack{track: track})
	})
	return media
}

func (l *rtcMediaLink) OnStream(handler func(RemoteStream)) { l.streams.SetHandler(handler) }

// Answer accepts an inbound call with stream.
func (l *rtcMediaLink) Answer(stream LocalStream) error {
	if !l.inbound {
		return fmt.Errorf("answering call to %s: outbound calls cannot be answered", l.peer)
	}
	if l.IsClosed() {
		return fmt.Errorf("answering call from %s: %w", l.peer, ErrClosed)
	}
	if !l.answered.CompareAndSwap(false, true) {
		return fmt.Errorf("call from %s already answered", l.peer)
	}
	go l.negotiateAnswer(stream)
	return nil
}

func (l *rtcMediaLink) negotiateAnswer(stream LocalStream) {
	// The remote offer must be applied first so AddTrack reuses the
	// offered transceiver instead of adding a new m-line.
	if err := l.connection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  l.offer,
	}); err != nil {
		l.shutdown(true, fmt.Errorf("setting remote offer: %w", err))
		return
	}
	// Without a local track the transceiver created from the offer
	// already receives; adding one would add an m-line the offer lacks.
	if stream != nil && stream.Track() != nil {
		if err := l.addStream(stream); err != nil {
			l.shutdown(true, err)
			return
		}
	}
	l.transport.answer(l.rtcLink)
}

// addStream attaches the local track, or a receive-only audio
// transceiver when there is none.
func (l *rtcMediaLink) addStream(stream LocalStream) error {
	var track webrtc.TrackLocal
	if stream != nil {
		track = stream.Track()
	}
	if track == nil {
		_, err := l.connection.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
		if err != nil {
			return fmt.Errorf("adding receive-only transceiver: %w", err)
		}
		return nil
	}
	sender, err := l.connection.AddTrack(track)
	if err != nil {
		return fmt.Errorf("adding local track: %w", err)
	}
	// Drain RTCP so the sender's buffers never fill.
	go func() {
		buffer := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buffer); err != nil {
				return
			}
		}
	}()
	return nil
}

// remoteTrack adapts a pion TrackRemote to RemoteStream.
type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (r remoteTrack) ID() string { return r.track.StreamID() + "/" + r.track.ID() }

func (r remoteTrack) ReadRTP() (*rtp.Packet, error) {
	packet, _, err := r.track.ReadRTP()
	return packet, err
}
