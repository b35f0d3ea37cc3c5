package agent

import (
	"context"
	_ "embed"
	"log/slog"
	"strings"

	"github.com/jmcleod/remotehand/protocol"
	"github.com/jmcleod/remotehand/storage"
)

//go:embed commands.txt
var commandsHelp string

// listCommands returns the help text, one entry per line.
func (a *Agent) listCommands(_ context.Context, x *exchange) (bool, error) {
	lines := strings.Split(strings.TrimRight(commandsHelp, "\n"), "\n")
	x.resp.Set("template_list", lines)
	return true, nil
}

// changeAccessPassword rotates the shared secret. The old secret is compared
// against the stored one, or against the default secret when none has been
// stored yet.
func (a *Agent) changeAccessPassword(ctx context.Context, x *exchange) (bool, error) {
	old, err := x.req.String("old")
	if err != nil {
		return false, err
	}
	current, err := a.store.Get(storage.KeyPassword, a.defaultSecret)
	if err != nil {
		return false, err
	}
	if current != old {
		a.audit.logFailure(ctx, AuditSecretRejected, x.identity, "old password mismatch")
		return false, nil
	}

	secret, err := x.req.String("new")
	if err != nil {
		return false, err
	}
	if err := a.store.Set(storage.KeyPassword, secret); err != nil {
		return false, err
	}
	a.audit.log(ctx, AuditSecretRotated, x.identity)
	return true, nil
}

func (a *Agent) setDeviceName(_ context.Context, x *exchange) (bool, error) {
	name, err := x.req.String("name")
	if err != nil {
		return false, err
	}
	return a.commit(storage.KeyDeviceName, name), nil
}

func (a *Agent) applyPasswordResetFileCmd(_ context.Context, x *exchange) (bool, error) {
	file, err := x.req.String("file")
	if err != nil {
		return false, err
	}
	return a.commit(storage.KeyResetFile, file), nil
}

func (a *Agent) getPRFile(_ context.Context, x *exchange) (bool, error) {
	file, err := a.store.Get(storage.KeyResetFile, "not set")
	if err != nil {
		return false, err
	}
	x.resp.Set(protocol.FieldInfo, file)
	return true, nil
}

// commit stores a value and reports success as a boolean.
func (a *Agent) commit(key, value string) bool {
	if err := a.store.Set(key, value); err != nil {
		a.logger.Warn("config write failed", "key", key, "error", err)
		return false
	}
	return true
}

func (a *Agent) getGrantedList(_ context.Context, x *exchange) (bool, error) {
	x.resp.Set("granted_list", a.state.Granted())
	return true, nil
}

// exit forgets the caller's authorization.
func (a *Agent) exit(ctx context.Context, x *exchange) (bool, error) {
	a.state.Revoke(x.identity)
	a.audit.log(ctx, AuditLogout, x.identity)
	return true, nil
}

func (a *Agent) toggle(ctx context.Context, identity string, f Flag, name string) bool {
	value := a.state.Toggle(f)
	a.audit.log(ctx, AuditFlagToggled, identity, slog.String("flag", name), slog.Bool("value", value))
	return value
}

func (a *Agent) notifyRequests(ctx context.Context, x *exchange) (bool, error) {
	on := a.toggle(ctx, x.identity, FlagNotify, "notifyRequests")
	if !on {
		if err := a.exec.CancelNotification(ctx, 0); err != nil {
			a.logger.Warn("cancel request notification failed", "error", err)
		}
	}
	x.resp.Set("notifyRequests", on)
	return true, nil
}

func (a *Agent) toggleTabs(ctx context.Context, x *exchange) (bool, error) {
	a.toggle(ctx, x.identity, FlagIndent, "toggleTabs")
	return true, nil
}

func (a *Agent) adminMode(ctx context.Context, x *exchange) (bool, error) {
	x.resp.Set("adminMode", a.toggle(ctx, x.identity, FlagAdmin, "adminMode"))
	return true, nil
}
