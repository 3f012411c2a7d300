package wl

import (
	"context"
	"errors"
	"sync"
	"time"

	"deedles.dev/wlkbd/layout"
	"deedles.dev/wlkbd/wire"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// DialFunc opens a new connection to the compositor.
type DialFunc func() (*wire.Conn, error)

// DialEnv dials the endpoint described by the environment. A
// WAYLAND_SOCKET endpoint can only be dialed once, so later calls fail
// with wire.NoEndpointError.
func DialEnv() DialFunc {
	var ep *wire.Endpoint
	return func() (*wire.Conn, error) {
		if ep == nil {
			var err error
			ep, err = wire.LookupEndpoint()
			if err != nil {
				return nil, err
			}
		}
		return ep.Dial()
	}
}

// Monitor keeps a Client running, reconnecting with exponential
// backoff whenever the connection fails.
type Monitor struct {
	// BindTimeout is passed on to each Client.
	BindTimeout time.Duration

	// Backoff decides how long to wait between connection attempts.
	// It is reset after every connection that got as far as binding
	// a keyboard.
	Backoff backoff.BackOff

	// OnSession, if not nil, is called with the error that ended each
	// connection before waiting to reconnect.
	OnSession func(err error, wait time.Duration)

	dial    DialFunc
	tracker *layout.Tracker
	log     *zap.SugaredLogger

	m       sync.Mutex
	client  *Client
	refresh bool
}

// NewMonitor returns a Monitor that connects with dial and reports to
// tracker. log may be nil.
func NewMonitor(dial DialFunc, tracker *layout.Tracker, log *zap.SugaredLogger) *Monitor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Monitor{
		BindTimeout: DefaultBindTimeout,
		Backoff:     NewBackoff(),

		dial:    dial,
		tracker: tracker,
		log:     log,
	}
}

// NewBackoff returns the default reconnection policy: starting at
// 100ms, doubling up to 10s, and never giving up.
func NewBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run connects and reconnects until ctx is canceled, in which case it
// returns nil, or until the environment turns out not to describe a
// compositor at all, in which case it returns a wire.NoEndpointError.
func (m *Monitor) Run(ctx context.Context) error {
	m.Backoff.Reset()

	for {
		bound, err := m.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		var noEndpoint wire.NoEndpointError
		if errors.As(err, &noEndpoint) {
			return err
		}

		if bound {
			m.Backoff.Reset()
		}
		wait := m.Backoff.NextBackOff()
		if wait == backoff.Stop {
			return err
		}

		m.log.Warnw("connection ended, reconnecting", "err", err, "wait", wait)
		if m.OnSession != nil {
			m.OnSession(err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Refresh asks the running Client to derive the label again, such as
// after the label overrides were reloaded. It may be called from any
// goroutine. Between connections the request is held until the next
// Client starts.
func (m *Monitor) Refresh() {
	m.m.Lock()
	defer m.m.Unlock()

	if m.client == nil {
		m.refresh = true
		return
	}
	m.client.Refresh()
}

func (m *Monitor) setClient(c *Client) {
	m.m.Lock()
	defer m.m.Unlock()

	m.client = c
	if (c != nil) && m.refresh {
		m.refresh = false
		c.Refresh()
	}
}

func (m *Monitor) session(ctx context.Context) (bound bool, err error) {
	m.tracker.Reset()

	conn, err := m.dial()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	client := NewClient(conn, m.tracker, m.log)
	client.BindTimeout = m.BindTimeout
	m.setClient(client)
	defer m.setClient(nil)

	err = client.Run(ctx)
	return client.Bound(), err
}
