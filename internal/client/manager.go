package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
	"github.com/fathima-sithara/notification-hub/internal/protocol"
)

type ManagerOptions struct {
	Policy *ReconnectPolicy
	Clock  clockwork.Clock
	Log    *zap.Logger
}

type pendingCall struct {
	target string
	done   chan error
}

// Manager owns one logical connection to the hub. Dialing, reading and retry scheduling all
// happen on a single run loop goroutine; Start and Stop only spawn and cancel it.
//
// Handlers registered with OnStateChange and OnEvent run on that goroutine. They must not
// block and must not call Stop.
type Manager struct {
	transport Transport
	policy    *ReconnectPolicy
	clock     clockwork.Clock
	log       *zap.Logger

	mu      sync.Mutex
	state   State
	connID  string
	conn    Conn
	groups  map[string]struct{}
	pending map[string]pendingCall
	cancel  context.CancelFunc
	done    chan struct{}

	handlersMu    sync.RWMutex
	stateHandlers []func(StateChange)
	eventHandlers []func(ServerEvent)

	seq atomic.Uint64
}

func NewManager(t Transport, opts ManagerOptions) *Manager {
	if opts.Policy == nil {
		opts.Policy = NewReconnectPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Manager{
		transport: t,
		policy:    opts.Policy,
		clock:     opts.Clock,
		log:       opts.Log.Named("connection"),
		groups:    make(map[string]struct{}),
		pending:   make(map[string]pendingCall),
	}
}

func (m *Manager) OnStateChange(fn func(StateChange)) {
	m.handlersMu.Lock()
	m.stateHandlers = append(m.stateHandlers, fn)
	m.handlersMu.Unlock()
}

func (m *Manager) OnEvent(fn func(ServerEvent)) {
	m.handlersMu.Lock()
	m.eventHandlers = append(m.eventHandlers, fn)
	m.handlersMu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionID is the id the hub assigned to the current connection, or "".
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// Groups lists the groups joined on the current connection.
func (m *Manager) Groups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.groups))
	for g := range m.groups {
		out = append(out, g)
	}
	return out
}

// Start opens the connection and returns the outcome of the first attempt. A failed attempt
// leaves retries scheduled in the background. Start is a no-op while a connection is open,
// being opened, or waiting for a scheduled retry.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	first := make(chan error, 1)
	go m.run(runCtx, done, first)

	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the connection and cancels any pending retry. A stopped Manager stays
// Disconnected until Start is called again.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) JoinGroup(ctx context.Context, group string) error {
	if err := m.invoke(ctx, protocol.InvokeJoinGroup, group); err != nil {
		return err
	}
	m.mu.Lock()
	m.groups[group] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Manager) LeaveGroup(ctx context.Context, group string) error {
	if err := m.invoke(ctx, protocol.InvokeLeaveGroup, group); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.groups, group)
	m.mu.Unlock()
	return nil
}

// Acknowledge tells the other connections this one has seen notificationID.
func (m *Manager) Acknowledge(ctx context.Context, notificationID string) error {
	return m.invoke(ctx, protocol.InvokeAcknowledgeNotification, notificationID)
}

// invoke sends one invocation and waits for its completion. It never queues or retries.
func (m *Manager) invoke(ctx context.Context, target string, args ...any) error {
	m.mu.Lock()
	conn := m.conn
	if conn == nil || m.state != Connected {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", target, apperr.ErrNotConnected)
	}
	id := strconv.FormatUint(m.seq.Add(1), 10)
	call := pendingCall{target: target, done: make(chan error, 1)}
	m.pending[id] = call
	m.mu.Unlock()

	frame, err := protocol.Invoke(id, target, args...)
	if err == nil {
		err = conn.WriteMessage(frame)
	}
	if err != nil {
		m.dropPending(id)
		return fmt.Errorf("%s: %w", target, err)
	}

	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		m.dropPending(id)
		return ctx.Err()
	}
}

func (m *Manager) dropPending(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, done chan struct{}, first chan<- error) {
	defer func() {
		m.policy.Reset()
		m.setState(Disconnected)
		m.mu.Lock()
		m.cancel = nil
		m.done = nil
		m.mu.Unlock()
		close(done)
	}()

	report := func(err error) {
		if first != nil {
			first <- err
			first = nil
		}
	}
	wasConnected := false

	for {
		if !wasConnected {
			m.setState(Connecting)
		}
		conn, err := m.transport.Dial(ctx)
		if err != nil {
			report(err)
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("connect failed", zap.Error(err), zap.Int("retry", m.policy.Retries()))
			if !wasConnected {
				m.setState(Disconnected)
			}
			if !m.wait(ctx) {
				return
			}
			continue
		}
		m.policy.Reset()
		m.attach(conn)
		m.setState(Connected)
		report(nil)
		m.log.Info("connected", zap.Bool("reconnected", wasConnected))

		err = m.read(ctx, conn)
		m.detach(conn)
		if ctx.Err() != nil {
			return
		}
		m.log.Warn("connection lost", zap.Error(err))
		wasConnected = true
		m.setState(Reconnecting)
		if !m.wait(ctx) {
			return
		}
	}
}

// wait sleeps for the next backoff delay. It reports false when retries are exhausted or ctx
// is cancelled.
func (m *Manager) wait(ctx context.Context) bool {
	delay := m.policy.NextBackOff()
	if delay == backoff.Stop {
		m.log.Warn("giving up reconnecting", zap.Int("retries", m.policy.Retries()))
		return false
	}
	m.log.Info("retry scheduled", zap.Duration("delay", delay), zap.Int("retry", m.policy.Retries()))

	timer := m.clock.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func (m *Manager) read(ctx context.Context, conn Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := protocol.Decode(b)
		if err != nil {
			m.log.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}
		switch env.Type {
		case protocol.TypeCompletion:
			m.complete(env)
		case protocol.TypeEvent:
			ev, err := DecodeEvent(env)
			if err != nil {
				m.log.Debug("ignoring event", zap.String("target", env.Target), zap.Error(err))
				continue
			}
			if ce, ok := ev.(ConnectionEstablished); ok {
				m.mu.Lock()
				m.connID = ce.ConnectionID
				m.mu.Unlock()
				m.emitState(StateChange{State: Connected, Previous: Connected, ConnectionID: ce.ConnectionID})
			}
			m.emitEvent(ev)
		}
	}
}

func (m *Manager) complete(env protocol.Envelope) {
	m.mu.Lock()
	call, ok := m.pending[env.ID]
	delete(m.pending, env.ID)
	m.mu.Unlock()
	if !ok {
		return
	}
	if env.Error != "" {
		call.done <- fmt.Errorf("%s: %w", call.target, errors.New(env.Error))
		return
	}
	call.done <- nil
}

func (m *Manager) attach(conn Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

// detach forgets conn and fails every invocation still waiting on it.
func (m *Manager) detach(conn Conn) {
	_ = conn.Close()
	m.mu.Lock()
	m.conn = nil
	m.connID = ""
	m.groups = make(map[string]struct{})
	pending := m.pending
	m.pending = make(map[string]pendingCall)
	m.mu.Unlock()

	for _, call := range pending {
		call.done <- fmt.Errorf("%s: %w", call.target, apperr.ErrNotConnected)
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	if prev == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	id := m.connID
	m.mu.Unlock()

	m.log.Debug("state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	m.emitState(StateChange{
		State:        s,
		Previous:     prev,
		ConnectionID: id,
		Reconnected:  s == Connected && prev == Reconnecting,
	})
}

func (m *Manager) emitState(c StateChange) {
	m.handlersMu.RLock()
	handlers := m.stateHandlers
	m.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(c)
	}
}

func (m *Manager) emitEvent(ev ServerEvent) {
	m.handlersMu.RLock()
	handlers := m.eventHandlers
	m.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(ev)
	}
}
