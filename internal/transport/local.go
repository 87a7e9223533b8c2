package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/metrics"
	"github.com/firemon-dev/firemon/internal/types"
)

const readBufferSize = 4096

// Local is the direct TCP connection to the panel controller. It owns
// its own reconnection backoff; an exhausted backoff leaves the transport
// in the Failed state until an explicit retry or mode switch.
type Local struct {
	log *log.Logger

	mu     sync.Mutex
	host   string
	port   int
	conn   net.Conn
	cancel context.CancelFunc
	state  types.ConnectionState

	wg sync.WaitGroup
}

func NewLocal(logger *log.Logger, host string, port int) *Local {
	return &Local{
		log:  logger.Component("local"),
		host: host,
		port: port,
	}
}

func (l *Local) Mode() types.TransportMode {
	return types.ModeLocal
}

func (l *Local) State() types.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SetEndpoint changes the panel controller address. An established
// connection is dropped so the reconnect picks up the new endpoint.
func (l *Local) SetEndpoint(host string, port int) {
	l.mu.Lock()
	l.host = host
	l.port = port
	conn := l.conn
	l.mu.Unlock()

	l.log.Info("Local endpoint set to %s:%d", host, port)
	if conn != nil {
		conn.Close()
	}
}

func (l *Local) Start(sink Sink, onState StateFunc) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return errAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(ctx, sink, onState)
	return nil
}

// Stop tears the transport down. When it returns, the read loop has
// exited and no further bytes reach the sink.
func (l *Local) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	conn := l.conn
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		conn.Close()
	}
	l.wg.Wait()

	l.mu.Lock()
	l.state = types.StateDisconnected
	l.mu.Unlock()
	l.log.Debug("Local transport stopped")
}

func (l *Local) run(ctx context.Context, sink Sink, onState StateFunc) {
	defer l.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		l.setState(onState, types.StateConnecting)
		conn, err := l.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Backoff exhausted: terminal until retry or mode switch.
			l.log.Error("Local connection failed: %v", err)
			l.setState(onState, types.StateFailed)
			return
		}

		l.mu.Lock()
		l.conn = conn
		l.mu.Unlock()
		l.log.Info("Connected to panel controller at %s", conn.RemoteAddr())
		l.setState(onState, types.StateConnected)

		l.readLoop(ctx, conn, sink)

		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		l.log.Warn("Local connection dropped, reconnecting")
		l.setState(onState, types.StateDisconnected)
	}
}

func (l *Local) dial(ctx context.Context) (net.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = time.Minute

	var conn net.Conn
	err := backoff.Retry(func() error {
		l.mu.Lock()
		addr := net.JoinHostPort(l.host, strconv.Itoa(l.port))
		l.mu.Unlock()

		metrics.ReconnectsTotal.WithLabelValues("local").Inc()
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			l.log.Debug("Dial %s failed: %v", addr, err)
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(bo, ctx))
	return conn, err
}

func (l *Local) readLoop(ctx context.Context, conn net.Conn, sink Sink) {
	buffer := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buffer)
		if n > 0 {
			sink(buffer[:n])
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() == nil {
				l.log.Error("Read error: %v", err)
			}
			return
		}
	}
}

func (l *Local) setState(onState StateFunc, state types.ConnectionState) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
	if onState != nil {
		onState(state)
	}
}
