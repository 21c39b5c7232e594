package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	opuscodec "github.com/jj11hh/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// opusRate is the WebRTC-standard opus clock rate. Microphone audio is
// resampled up to it before encoding.
const (
	opusRate     = 48000
	opusChannels = 2
	opusFrame    = 20 * time.Millisecond
)

// transport is one WebRTC connection to the realtime API: an outbound
// opus audio track plus the "oai-events" data channel.
type transport struct {
	sessionMgr *SessionManager

	peerConnection *webrtc.PeerConnection
	dataChannel    *webrtc.DataChannel
	audioTrack     *webrtc.TrackLocalStaticSample
	opusEncoder    *opuscodec.Encoder

	events chan ServerEvent
	errs   chan error
	opened chan struct{}

	mu     sync.Mutex
	closed bool
}

func newTransport(apiKey string) *transport {
	return &transport{
		sessionMgr: NewSessionManager(apiKey),
		events:     make(chan ServerEvent, 100),
		errs:       make(chan error, 1),
		opened:     make(chan struct{}),
	}
}

// connect mints a session secret, dials WebRTC and completes the SDP
// exchange. Returns once ICE gathering and signaling are done.
func (t *transport) connect(ctx context.Context, language string) error {
	secret, err := t.sessionMgr.CreateSession(ctx, language)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	t.peerConnection = pc

	// Track must exist before the offer so the SDP advertises audio.
	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: opusRate,
			Channels:  opusChannels,
		},
		"audio",
		"voxd-mic",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	if _, err := pc.AddTrack(audioTrack); err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}
	t.audioTrack = audioTrack

	enc, err := opuscodec.NewEncoder(opusRate, opusChannels, opuscodec.AppVoIP)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}
	t.opusEncoder = enc

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	t.dataChannel = dc

	dc.OnOpen(func() {
		close(t.opened)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ev, err := parseServerEvent(msg.Data)
		if err != nil {
			slog.Debug("undecodable realtime event", "error", err)
			return
		}
		select {
		case t.events <- ev:
		default:
			slog.Warn("realtime event queue full, dropping", "type", ev.Type)
		}
	})

	// The API returns an audio track we never use; drain it.
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			select {
			case t.errs <- fmt.Errorf("ICE connection %s", state.String()):
			default:
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	// Wait so the offer carries the gathered ICE candidates.
	<-webrtc.GatheringCompletePromise(pc)

	answerSDP, err := t.sessionMgr.ExchangeSDP(ctx, pc.LocalDescription().SDP, secret.Value)
	if err != nil {
		return fmt.Errorf("exchange SDP: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	slog.Info("realtime transcription connected", "language", language)
	return nil
}

// waitOpen blocks until the data channel is usable.
func (t *transport) waitOpen(ctx context.Context) error {
	select {
	case <-t.opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send delivers a control event over the data channel.
func (t *transport) send(event any) error {
	t.mu.Lock()
	dc := t.dataChannel
	t.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("data channel not ready")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return dc.Send(data)
}

// sendAudio opus-encodes one frame of 48 kHz mono samples and writes it
// to the track. The sample count must match the opus frame duration.
func (t *transport) sendAudio(mono48k []float32) error {
	t.mu.Lock()
	track, encoder := t.audioTrack, t.opusEncoder
	t.mu.Unlock()
	if track == nil || encoder == nil {
		return fmt.Errorf("audio track not ready")
	}

	stereo := make([]float32, len(mono48k)*2)
	for i, s := range mono48k {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}

	packet := make([]byte, 1275)
	n, err := encoder.EncodeFloat32(stereo, packet)
	if err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}

	return track.WriteSample(media.Sample{
		Data:     packet[:n],
		Duration: time.Duration(len(mono48k)) * time.Second / opusRate,
	})
}

func (t *transport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.dataChannel != nil {
		_ = t.dataChannel.Close()
	}
	if t.peerConnection != nil {
		return t.peerConnection.Close()
	}
	return nil
}
