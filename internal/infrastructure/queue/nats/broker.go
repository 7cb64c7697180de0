package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/resilience"
)

// Handler turns one request payload into a reply payload. Handlers report
// failures inside the reply; the broker never retries a request.
type Handler func(ctx context.Context, payload []byte) []byte

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool

	QueueGroup     string
	Concurrency    int
	HandlerTimeout time.Duration
	DrainTimeout   time.Duration

	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

// Broker carries rewrite requests over NATS request-reply. Workers share a
// queue group so each request is answered by exactly one of them.
type Broker struct {
	conn     *nats.Conn
	subject  string
	options  Options
	executor *resilience.Executor
	logger   *slog.Logger
}

func New(url, subject string) (*Broker, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Broker, error) {
	options = options.normalize()
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger

	conn, err := nats.Connect(
		url,
		nats.Name("rag-query-rewriter"),
		nats.Timeout(options.ConnectTimeout),
		nats.ReconnectWait(options.ReconnectWait),
		nats.MaxReconnects(options.MaxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Broker{
		conn:     conn,
		subject:  subject,
		options:  options,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (o Options) normalize() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	if o.QueueGroup == "" {
		o.QueueGroup = "rewriters"
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 30 * time.Second
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (b *Broker) Subject() string {
	return b.subject
}

func (b *Broker) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// Request publishes payload and waits for a single reply.
func (b *Broker) Request(ctx context.Context, payload []byte) ([]byte, error) {
	call := func(ctx context.Context) ([]byte, error) {
		msg, err := b.conn.RequestWithContext(ctx, b.subject, payload)
		if err != nil {
			return nil, fmt.Errorf("nats request: %w", err)
		}
		return msg.Data, nil
	}

	var (
		reply []byte
		err   error
	)
	if b.executor != nil {
		reply, err = resilience.Do(ctx, b.executor, "nats.request", call, classifyNATSError)
	} else {
		reply, err = call(ctx)
	}
	if err != nil {
		return nil, wrapNATSError("nats request", err)
	}
	return reply, nil
}

// Serve answers requests until ctx is canceled, then drains the
// subscription and waits for in-flight handlers. At most
// Options.Concurrency handlers run at once; further deliveries wait.
func (b *Broker) Serve(ctx context.Context, handler Handler) error {
	group := new(errgroup.Group)
	group.SetLimit(b.options.Concurrency)
	// In-flight handlers outlive the serve context so drained requests
	// still get a reply.
	base := context.WithoutCancel(ctx)

	sub, err := b.conn.QueueSubscribe(b.subject, b.options.QueueGroup, func(msg *nats.Msg) {
		group.Go(func() error {
			handlerCtx, cancel := context.WithTimeout(base, b.options.HandlerTimeout)
			defer cancel()
			reply := handler(handlerCtx, msg.Data)
			if msg.Reply == "" {
				return nil
			}
			if err := msg.Respond(reply); err != nil {
				b.logger.Error("nats_respond_failed", "subject", msg.Subject, "error", err)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	b.logger.Info("nats_serving", "subject", b.subject, "queue_group", b.options.QueueGroup, "concurrency", b.options.Concurrency)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	deadline := time.Now().Add(b.options.DrainTimeout)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	_ = group.Wait()
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
