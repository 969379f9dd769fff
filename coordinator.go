package sessionguard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// coordinatorState is the §4.3 state machine:
// Stopped -> Starting -> Running -> Degraded -> Stopping -> Stopped.
type coordinatorState int32

const (
	stateStopped coordinatorState = iota
	stateStarting
	stateRunning
	stateDegraded
	stateStopping
)

func (s coordinatorState) String() string {
	switch s {
	case stateStarting:
		return "starting"
	case stateRunning:
		return "running"
	case stateDegraded:
		return "degraded"
	case stateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// coordinator owns the single background subscriber task a
// ClusteredStore runs, reconnecting with exponential backoff on
// connection loss, modeled on dcache's listenKeyInvalidate/aggregateSend
// goroutine pair and its ticker/stop-channel shutdown discipline
// generalized here into an explicit state machine, since §4.3 names one.
type coordinator struct {
	pubsub  PubSubClient
	channel string
	nodeID  string
	logger  zerolog.Logger
	metrics Metrics

	state     atomic.Int32
	onEvent   func(channelMessage)
	onStarted func()
	stopCh    chan struct{}
	stopOnce  sync.Once
	doneCh    chan struct{}
}

func newCoordinator(pubsub PubSubClient, channel, nodeID string, logger zerolog.Logger, metrics Metrics, onEvent func(channelMessage), onStarted func()) *coordinator {
	c := &coordinator{
		pubsub:    pubsub,
		channel:   channel,
		nodeID:    nodeID,
		logger:    logger,
		metrics:   metrics,
		onEvent:   onEvent,
		onStarted: onStarted,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	c.state.Store(int32(stateStopped))
	return c
}

func (c *coordinator) State() coordinatorState {
	return coordinatorState(c.state.Load())
}

// Start makes one subscribe attempt. On failure it returns that error
// (the state stays Starting and no goroutine is started). On success it
// moves to Running, fires onStarted, and starts the background goroutine
// that keeps reconnecting for the coordinator's lifetime.
func (c *coordinator) Start(ctx context.Context) error {
	c.state.Store(int32(stateStarting))

	messages, closeFn, err := c.pubsub.Subscribe(ctx, c.channel)
	if err != nil {
		return err
	}
	c.state.Store(int32(stateRunning))
	c.logger.Info().Str("channel", c.channel).Msg("sessionguard: coordinator subscribed")
	if c.onStarted != nil {
		c.onStarted()
	}

	go c.run(messages, closeFn)
	return nil
}

// run owns the subscribe/consume/reconnect loop for the coordinator's
// entire lifetime, until Shutdown closes stopCh.
func (c *coordinator) run(messages <-chan []byte, closeFn func()) {
	defer close(c.doneCh)
	current := messages
	currentClose := closeFn

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0.1

	for {
		select {
		case <-c.stopCh:
			if currentClose != nil {
				currentClose()
			}
			c.state.Store(int32(stateStopped))
			return

		case payload, ok := <-current:
			if !ok {
				// Connection lost: degrade and reconnect with backoff.
				c.state.Store(int32(stateDegraded))
				c.logger.Warn().Msg("sessionguard: coordinator subscription lost, reconnecting")
				next, nextClose := c.reconnect(b)
				if next == nil {
					// stopCh closed during reconnect attempt.
					c.state.Store(int32(stateStopped))
					return
				}
				current, currentClose = next, nextClose
				c.state.Store(int32(stateRunning))
				b.Reset()
				continue
			}
			c.handle(payload)
		}
	}
}

// reconnect retries Subscribe with exponential backoff until it
// succeeds or stopCh closes. Returns nil channel/closeFn if stopCh fired
// first.
func (c *coordinator) reconnect(b *backoff.ExponentialBackOff) (<-chan []byte, func()) {
	ctx := context.Background()
	for {
		select {
		case <-c.stopCh:
			return nil, nil
		default:
		}

		messages, closeFn, err := c.pubsub.Subscribe(ctx, c.channel)
		if err == nil {
			return messages, closeFn
		}
		c.logger.Warn().Err(err).Msg("sessionguard: coordinator resubscribe failed, backing off")

		delay := b.NextBackOff()
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.stopCh:
			timer.Stop()
			return nil, nil
		}
	}
}

func (c *coordinator) handle(payload []byte) {
	msg, err := decodeChannelMessage(payload)
	if err != nil {
		c.metrics.Counter("session.cluster.invalidate.parse_error", nil)
		c.logger.Warn().Err(err).Msg("sessionguard: unparseable invalidation message")
		return
	}
	if msg.NodeID == c.nodeID {
		return // loopback: the publisher already updated its own cache
	}
	c.onEvent(msg)
}

// Publish broadcasts an invalidation message tagged with this node's id.
func (c *coordinator) Publish(ctx context.Context, msg channelMessage) error {
	data, err := msg.encode()
	if err != nil {
		return err
	}
	return c.pubsub.Publish(ctx, c.channel, data)
}

// Shutdown transitions to Stopping, cancels the subscriber task, and
// blocks until it has fully exited (-> Stopped).
func (c *coordinator) Shutdown() {
	c.state.Store(int32(stateStopping))
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}
