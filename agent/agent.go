// Package agent implements the request pipeline of the remote-control agent:
// the shared-secret session gate, the command dispatcher with its fixed
// command table, the wipe confirmation counter and the relay fan-out.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmcleod/remotehand/actuator"
	"github.com/jmcleod/remotehand/protocol"
	"github.com/jmcleod/remotehand/relay"
	"github.com/jmcleod/remotehand/storage"
)

const (
	// DefaultMasterKey unlocks the wipe command.
	DefaultMasterKey = "gmasterkey"
	// DefaultSecret is what the stored secret is assumed to be when a
	// rotation is requested before one was ever set.
	DefaultSecret = "genonbeta"
)

// Agent ties the shared state, the configuration store, the host executor
// and the relay registry into the request pipeline. It is safe for
// concurrent use by many connections.
type Agent struct {
	store    storage.Store
	exec     actuator.Executor
	relays   *relay.Registry
	state    *State
	handlers map[string]handlerFunc

	masterKey     string
	defaultSecret string
	versionName   string
	versionCode   int
	countdown     int

	logger  *slog.Logger
	audit   *auditLogger
	alertFn AlertFunc
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the structured logger. Audit events go to a sub-logger
// tagged component=audit.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithMasterKey overrides the key the wipe command must present.
func WithMasterKey(key string) Option {
	return func(a *Agent) { a.masterKey = key }
}

// WithDefaultSecret overrides the secret assumed by the rotation command when
// none is stored.
func WithDefaultSecret(secret string) Option {
	return func(a *Agent) { a.defaultSecret = secret }
}

// WithWipeCountdown sets the number of confirmations absorbed before a wipe.
func WithWipeCountdown(n int) Option {
	return func(a *Agent) { a.countdown = n }
}

// WithRelayRegistry supplies the relay registry instead of a fresh one.
func WithRelayRegistry(r *relay.Registry) Option {
	return func(a *Agent) { a.relays = r }
}

// WithVersion sets the version reported by sayHello.
func WithVersion(name string, code int) Option {
	return func(a *Agent) {
		a.versionName = name
		a.versionCode = code
	}
}

// WithAlertFunc registers a callback for anomaly alerts such as spikes of
// failed logins.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *Agent) { a.alertFn = fn }
}

// New creates an Agent.
func New(store storage.Store, exec actuator.Executor, opts ...Option) *Agent {
	a := &Agent{
		store:         store,
		exec:          exec,
		masterKey:     DefaultMasterKey,
		defaultSecret: DefaultSecret,
		versionName:   "dev",
		versionCode:   1,
		countdown:     DefaultWipeCountdown,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.relays == nil {
		a.relays = relay.NewRegistry(relay.WithLogger(a.logger))
	}
	a.audit = newAuditLogger(a.logger)
	if a.alertFn != nil {
		a.audit.alerts = newAlertCollector(a.alertFn)
	}
	a.state = NewState(a.countdown)
	a.handlers = a.commandTable()
	return a
}

// State exposes the shared state.
func (a *Agent) State() *State {
	return a.state
}

// Relays exposes the relay registry.
func (a *Agent) Relays() *relay.Registry {
	return a.relays
}

// Commands lists the names in the command table.
func (a *Agent) Commands() []string {
	names := make([]string, 0, len(a.handlers))
	for name := range a.handlers {
		names = append(names, name)
	}
	return names
}

// Handle runs one exchange from identity through the gate and, once the
// identity is authorized, the dispatcher. It always returns a response.
func (a *Agent) Handle(ctx context.Context, identity string, req protocol.Request) *protocol.Response {
	resp := protocol.NewResponse()
	if err := a.handle(ctx, identity, req, resp); err != nil {
		resp.Set(protocol.FieldError, err.Error())
	}
	return resp
}

func (a *Agent) handle(ctx context.Context, identity string, req protocol.Request, resp *protocol.Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("exchange panicked", "identity", identity, "panic", r)
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	if err := a.preamble(ctx, identity, req, resp); err != nil {
		return err
	}
	granted, err := a.authorize(ctx, identity, req, resp)
	if err != nil || !granted {
		return err
	}
	return a.dispatch(ctx, identity, req, resp)
}

// preamble applies the fields every exchange carries regardless of
// authorization: the device name echo and the request notification.
func (a *Agent) preamble(ctx context.Context, identity string, req protocol.Request, resp *protocol.Response) error {
	if req.Has("printDeviceName") {
		want, err := req.Bool("printDeviceName")
		if err != nil {
			return err
		}
		if want {
			name, err := a.store.Get(storage.KeyDeviceName, a.exec.Device().Model)
			if err != nil {
				return err
			}
			resp.Set("deviceName", name)
		}
	}

	if a.state.Flag(FlagNotify) {
		err := a.exec.Notify(ctx, actuator.Notification{
			ID:      0,
			Title:   identity,
			Content: req.Raw(),
			Ticker:  req.Raw(),
		})
		if err != nil {
			a.logger.Warn("request notification failed", "identity", identity, "error", err)
		} else {
			resp.Set(protocol.FieldWarning, "Request notified")
		}
	}
	return nil
}

// HandleUnsolicitedCommand runs a command that arrived outside the socket
// channel, for instance a short message. Malformed text is treated as an
// empty request. The response is sent back to sender as a message.
func (a *Agent) HandleUnsolicitedCommand(ctx context.Context, sender, text string) (*protocol.Response, error) {
	req := protocol.ParseLenient([]byte(text))
	resp := a.Handle(ctx, sender, req)
	if err := a.exec.SendSMS(ctx, sender, resp.String()); err != nil {
		return resp, fmt.Errorf("replying to %s: %w", sender, err)
	}
	return resp, nil
}

// ObserveUnsolicited mirrors an ordinary inbound message to every relay when
// the spy flag is set, and reports whether it did.
func (a *Agent) ObserveUnsolicited(ctx context.Context, sender, text string) bool {
	if !a.state.Flag(FlagSpy) {
		return false
	}
	a.relays.Broadcast(ctx, sender+">"+text)
	return true
}

// ApplyPasswordResetFile consumes a pending password-reset file. When a file
// is registered under the reset-file key and exists, the host vibrates, its
// lock password is cleared and the file is renamed with an ".old" suffix so
// it is applied only once.
func (a *Agent) ApplyPasswordResetFile(ctx context.Context) error {
	ok, err := a.store.Has(storage.KeyResetFile)
	if err != nil || !ok {
		return err
	}
	path, err := a.store.Get(storage.KeyResetFile, "")
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	if err := a.exec.Vibrate(ctx, resetFileVibration); err != nil {
		a.logger.Warn("vibrate failed", "error", err)
	}
	if _, err := a.exec.ResetPassword(ctx, ""); err != nil {
		return fmt.Errorf("resetting password: %w", err)
	}
	if err := os.Rename(path, path+".old"); err != nil {
		return fmt.Errorf("retiring reset file: %w", err)
	}
	a.audit.log(ctx, AuditResetFileUsed, "local", slog.String("file", path))
	return nil
}
