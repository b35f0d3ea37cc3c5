package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmcleod/remotehand/protocol"
	"github.com/jmcleod/remotehand/relay"
)

func (a *Agent) addConnection(ctx context.Context, x *exchange) (bool, error) {
	var target relay.Target
	if x.req.Has("telNumber") {
		number, err := x.req.String("telNumber")
		if err != nil {
			return false, err
		}
		target = relay.NewPhoneTarget(number, a.exec)
	} else {
		server, err := x.req.String("server")
		if err != nil {
			return false, err
		}
		port, err := x.req.Int("port")
		if err != nil {
			return false, err
		}
		target = relay.NewSocketTarget(server, port)
	}

	added := a.relays.Add(target)
	if added {
		a.audit.log(ctx, AuditRelayAdded, x.identity, slog.String("target", target.String()))
	}
	return added, nil
}

func (a *Agent) getConnections(_ context.Context, x *exchange) (bool, error) {
	x.resp.Set("connection_list", a.relays.List())
	return true, nil
}

func (a *Agent) removeAllConnections(ctx context.Context, x *exchange) (bool, error) {
	a.relays.Clear()
	a.audit.log(ctx, AuditRelayCleared, x.identity)
	return true, nil
}

func (a *Agent) sendToAllConnections(ctx context.Context, x *exchange) (bool, error) {
	msg, err := x.req.String("message")
	if err != nil {
		return false, err
	}
	a.relays.Broadcast(ctx, msg)
	a.audit.log(ctx, AuditRelayBroadcast, x.identity, slog.Int("targets", a.relays.Len()))
	return true, nil
}

func (a *Agent) spyMessages(ctx context.Context, x *exchange) (bool, error) {
	on := a.toggle(ctx, x.identity, FlagSpy, "spyMessages")
	if on && a.relays.Len() == 0 {
		x.resp.Set(protocol.FieldAttention, "No connection has been added use 'addConnection'")
	}
	x.resp.Set("spyMessages", on)
	return true, nil
}

// wipeData performs the factory wipe once the confirmation countdown has
// been exhausted by requests carrying the master key.
func (a *Agent) wipeData(ctx context.Context, x *exchange) (bool, error) {
	x.resp.Set(protocol.FieldWarning, "This feature will delete external storage and protected data")

	var key string
	if x.req.Has("master") {
		// A master field of the wrong type simply fails to match.
		key, _ = x.req.String("master")
	}

	verdict, remaining := a.state.ConfirmWipe(key, a.masterKey)
	switch verdict {
	case WipeFire:
		x.resp.Set(protocol.FieldInfo, "Request successful. Wipe requested")
		if err := a.exec.WipeData(ctx); err != nil {
			return false, err
		}
		a.audit.log(ctx, AuditWipePerformed, x.identity)
		return true, nil
	case WipeArmed:
		x.resp.Set(protocol.FieldInfo, fmt.Sprintf("You need to request %d times to wipe all data", remaining))
		a.audit.log(ctx, AuditWipeArmed, x.identity, slog.Int("remaining", remaining-1))
		return false, nil
	default:
		a.audit.logFailure(ctx, AuditWipeRejected, x.identity, "master key mismatch")
		x.resp.Set(protocol.FieldError, "Master key required to perform this action.")
		return false, nil
	}
}
