// Package mqtt subscribes to live location fixes published on an MQTT topic.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/bft-labs/zonecast/internal/adapters/location"
	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/pkg/log"
)

// Config configures the MQTT provider.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	// QoS for the subscription.
	// Default: 1
	QoS byte
	// ConnectTimeout bounds the broker handshake.
	// Default: 10 seconds
	ConnectTimeout time.Duration
	// Buffer is the sample channel capacity. Fixes arriving while it is full
	// are dropped.
	// Default: 64
	Buffer int
}

// Provider is an MQTT-backed ports.LocationProvider. All subscriptions share
// one client; the topic subscription and the connection are released when
// the last stream ends.
type Provider struct {
	cfg       Config
	logger    log.Logger
	newClient func(*paho.ClientOptions) paho.Client
	now       func() time.Time

	mu     sync.Mutex // guards client
	client paho.Client

	smu     sync.Mutex // guards streams; never held while waiting on a token
	streams map[*stream]struct{}
}

var _ ports.LocationProvider = (*Provider)(nil)

// New creates an MQTT provider.
func New(cfg Config, logger log.Logger) *Provider {
	if cfg.ClientID == "" {
		cfg.ClientID = "zonecast-tracker"
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Provider{
		cfg:       cfg,
		logger:    logger,
		newClient: paho.NewClient,
		now:       time.Now,
		streams:   make(map[*stream]struct{}),
	}
}

// RequestPermission connects to the broker. Rejected credentials map to
// domain.ErrPermissionDenied, anything else to domain.ErrProviderUnavailable.
func (p *Provider) RequestPermission(ctx context.Context) error {
	_, err := p.attach(ctx, nil)
	return err
}

// Subscribe subscribes to the configured topic. The channel is closed when
// ctx is canceled; the client is disconnected once no stream is left.
func (p *Provider) Subscribe(ctx context.Context, cfg ports.SubscribeConfig) (<-chan domain.LocationSample, error) {
	s := &stream{
		out:    make(chan domain.LocationSample, p.cfg.Buffer),
		filter: location.NewFilter(cfg),
		logger: p.logger,
	}

	client, err := p.attach(ctx, s)
	if err != nil {
		return nil, err
	}

	token := client.Subscribe(p.cfg.Topic, p.cfg.QoS, p.route)
	if err := wait(ctx, token, p.cfg.ConnectTimeout); err != nil {
		p.release(client, s)
		s.close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrProviderUnavailable, p.cfg.Topic, err)
	}
	p.logger.Info("subscribed to location topic",
		log.String("broker", p.cfg.Broker),
		log.String("topic", p.cfg.Topic),
	)

	go func() {
		<-ctx.Done()
		p.release(client, s)
		s.close()
	}()
	return s.out, nil
}

// attach connects if needed and registers s, atomically with respect to
// release.
func (p *Provider) attach(ctx context.Context, s *stream) (paho.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	client, err := p.connectLocked(ctx)
	if err != nil {
		return nil, err
	}
	if s != nil {
		p.smu.Lock()
		p.streams[s] = struct{}{}
		p.smu.Unlock()
	}
	return client, nil
}

// release unregisters s. The last stream on the current client unsubscribes
// and disconnects it.
func (p *Provider) release(client paho.Client, s *stream) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.smu.Lock()
	delete(p.streams, s)
	remaining := len(p.streams)
	p.smu.Unlock()

	if remaining > 0 || p.client != client {
		return
	}
	client.Unsubscribe(p.cfg.Topic).WaitTimeout(time.Second)
	client.Disconnect(250)
	p.client = nil
	p.logger.Debug("mqtt client released", log.String("broker", p.cfg.Broker))
}

func (p *Provider) connectLocked(ctx context.Context) (paho.Client, error) {
	if p.client != nil {
		if p.client.IsConnected() {
			return p.client, nil
		}
		p.client.Disconnect(0)
		p.client = nil
	}

	opts := paho.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(p.cfg.ConnectTimeout)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.logger.Warn("mqtt connection lost, will auto-reconnect", log.Err(err))
	})
	// A clean session drops subscriptions on reconnect.
	opts.SetOnConnectHandler(p.resubscribe)

	client := p.newClient(opts)
	if err := wait(ctx, client.Connect(), p.cfg.ConnectTimeout); err != nil {
		client.Disconnect(0)
		return nil, classifyConnectError(err)
	}
	p.client = client
	return client, nil
}

func (p *Provider) resubscribe(client paho.Client) {
	p.smu.Lock()
	active := len(p.streams)
	p.smu.Unlock()
	if active == 0 {
		return
	}

	token := client.Subscribe(p.cfg.Topic, p.cfg.QoS, p.route)
	if !token.WaitTimeout(p.cfg.ConnectTimeout) {
		p.logger.Warn("mqtt resubscribe timed out", log.String("topic", p.cfg.Topic))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("mqtt resubscribe failed", log.String("topic", p.cfg.Topic), log.Err(err))
		return
	}
	p.logger.Info("resubscribed to location topic", log.String("topic", p.cfg.Topic))
}

// route decodes one message and offers it to every active stream.
func (p *Provider) route(_ paho.Client, msg paho.Message) {
	sample, err := location.Decode(msg.Payload(), p.now())
	if err != nil {
		p.logger.Warn("invalid location message", log.String("topic", msg.Topic()), log.Err(err))
		return
	}

	p.smu.Lock()
	streams := make([]*stream, 0, len(p.streams))
	for s := range p.streams {
		streams = append(streams, s)
	}
	p.smu.Unlock()

	for _, s := range streams {
		s.offer(sample, msg.Topic())
	}
}

func classifyConnectError(err error) error {
	if errors.Is(err, packets.ErrorRefusedNotAuthorised) || errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) {
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: mqtt connect: %v", domain.ErrProviderUnavailable, err)
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stream is one subscriber's filtered view of the topic.
type stream struct {
	out    chan domain.LocationSample
	logger log.Logger

	mu     sync.Mutex
	filter *location.Filter
	closed bool
}

func (s *stream) offer(sample domain.LocationSample, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.filter.Accept(sample) {
		return
	}
	select {
	case s.out <- sample:
	default:
		s.logger.Warn("location buffer full, dropping fix", log.String("topic", topic))
	}
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}
