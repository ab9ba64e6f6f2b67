package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/cbox"
	"github.com/nerrad567/blox-core/internal/cbox/codec"
	"github.com/nerrad567/blox-core/internal/infrastructure/mqtt"
)

// Broker is the part of the MQTT client the bridge uses. *mqtt.Client
// satisfies it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	Topics mqtt.Topics
	QoS    byte

	// MaxFrame bounds a frame body; 0 selects codec.DefaultMaxBody.
	MaxFrame int

	// PublishInterval is the state snapshot period. Zero disables state
	// publishing.
	PublishInterval time.Duration
}

// Bridge carries frames over MQTT and publishes object state.
//
// A command message may hold several frames back to back, in either
// framing; each gets its own reply message on the reply topic. State is
// published retained, one topic per object; when an object disappears its
// retained message is cleared.
//
// Thread Safety:
//   - PublishStates and the message handler are safe for concurrent use.
//   - Start and Close must be called once each, from one goroutine.
type Bridge struct {
	cfg    BridgeConfig
	broker Broker
	sub    Submitter
	snap   Snapshotter
	logger Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pubMu     sync.Mutex
	published map[cbox.ObjectID]struct{}
}

// NewBridge creates a bridge. snap may be nil when state publishing is
// not wanted.
func NewBridge(cfg BridgeConfig, broker Broker, sub Submitter, snap Snapshotter) *Bridge {
	return &Bridge{
		cfg:       cfg,
		broker:    broker,
		sub:       sub,
		snap:      snap,
		logger:    noopLogger{},
		published: make(map[cbox.ObjectID]struct{}),
	}
}

// SetLogger sets the logger. Must be called before Start.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to the command topic and, if configured, starts the
// state publisher.
func (b *Bridge) Start(ctx context.Context) error {
	if b.ctx != nil {
		return ErrAlreadyStarted
	}
	ctx, b.cancel = context.WithCancel(box.WithSource(ctx, "mqtt"))
	b.ctx = ctx

	if err := b.broker.Subscribe(b.cfg.Topics.Command(), b.cfg.QoS, b.handleCommand); err != nil {
		b.cancel()
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	b.logger.Info("mqtt transport subscribed", "topic", b.cfg.Topics.Command())

	if b.cfg.PublishInterval > 0 && b.snap != nil {
		b.wg.Add(1)
		go b.publishLoop(ctx)
	}
	return nil
}

// Close unsubscribes and stops the state publisher.
func (b *Bridge) Close() error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	b.wg.Wait()
	if err := b.broker.Unsubscribe(b.cfg.Topics.Command()); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		return fmt.Errorf("unsubscribing from commands: %w", err)
	}
	return nil
}

// handleCommand answers every frame in payload. A stream error (a frame
// cut off by the end of the message) stops processing; replies already
// published stand.
func (b *Bridge) handleCommand(_ string, payload []byte) error {
	reader := codec.NewReader(bytes.NewReader(payload), b.cfg.MaxFrame)
	for {
		frame, err := reader.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !codec.IsFrameError(err) {
			return fmt.Errorf("reading command message: %w", err)
		}

		out, err := exchange(b.ctx, b.sub, frame, err)
		if err != nil {
			return err
		}
		if err := b.broker.Publish(b.cfg.Topics.Reply(), out, b.cfg.QoS, false); err != nil {
			return fmt.Errorf("publishing reply %d: %w", frame.MsgID, err)
		}
	}
}

func (b *Bridge) publishLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.PublishStates(ctx); err != nil && ctx.Err() == nil {
				b.logger.Warn("mqtt state publish failed", "error", err)
			}
		}
	}
}

// PublishStates takes a snapshot on the loop and publishes it, retained,
// one message per object. Objects published before but now gone get an
// empty retained message, which removes them from the broker.
//
// Returns:
//   - error: Snapshot failure, or all publish failures joined
func (b *Bridge) PublishStates(ctx context.Context) error {
	if b.snap == nil {
		return nil
	}

	var views []box.ObjectView
	if err := b.snap.Do(ctx, func(bx *box.Box) { views = bx.Views() }); err != nil {
		return fmt.Errorf("taking snapshot: %w", err)
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	var errs []error
	current := make(map[cbox.ObjectID]struct{}, len(views))
	for _, v := range views {
		current[v.ID] = struct{}{}
		data, err := json.Marshal(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("encoding object %d: %w", v.ID, err))
			continue
		}
		if err := b.broker.Publish(b.cfg.Topics.State(uint16(v.ID)), data, b.cfg.QoS, true); err != nil {
			errs = append(errs, fmt.Errorf("publishing object %d: %w", v.ID, err))
		}
	}

	for id := range b.published {
		if _, ok := current[id]; ok {
			continue
		}
		if err := b.broker.Publish(b.cfg.Topics.State(uint16(id)), nil, b.cfg.QoS, true); err != nil {
			errs = append(errs, fmt.Errorf("clearing object %d: %w", id, err))
			current[id] = struct{}{}
		}
	}
	b.published = current

	return errors.Join(errs...)
}
