package agent

import (
	"context"
	"slices"

	"github.com/jmcleod/remotehand/protocol"
	"github.com/jmcleod/remotehand/storage"
)

// Gate replies.
const (
	infoSecretSetPrefix = "password is set to "
	infoSecretUnset     = "password is never set, to set use 'accessPassword'"
	infoAccessGranted   = "access granted"
	infoWrongSecret     = "password was incorrect"
	infoSecretRequired  = "to access use 'password'"
)

// authorize reports whether identity may proceed to the dispatcher. Every
// refusal is written to resp as an info field.
//
// A successful login is itself refused: the identity joins the granted set
// and its next exchange is the first one dispatched. Likewise the exchange
// that first sets the secret is refused and grants nothing.
func (a *Agent) authorize(ctx context.Context, identity string, req protocol.Request, resp *protocol.Response) (bool, error) {
	// The whole decision runs under the state lock so two first-time
	// exchanges cannot both observe an unset secret.
	a.state.mu.Lock()
	defer a.state.mu.Unlock()

	if slices.Contains(a.state.granted, identity) {
		return true, nil
	}

	hasSecret, err := a.store.Has(storage.KeyPassword)
	if err != nil {
		return false, err
	}

	switch {
	case !hasSecret:
		if !req.Has("accessPassword") {
			resp.Set(protocol.FieldInfo, infoSecretUnset)
			return false, nil
		}
		secret, err := req.String("accessPassword")
		if err != nil {
			return false, err
		}
		if err := a.store.Set(storage.KeyPassword, secret); err != nil {
			return false, err
		}
		a.audit.log(ctx, AuditSecretSet, identity)
		resp.Set(protocol.FieldInfo, infoSecretSetPrefix+secret)
		return false, nil

	case req.Has("password"):
		candidate, err := req.String("password")
		if err != nil {
			return false, err
		}
		secret, err := a.store.Get(storage.KeyPassword, a.defaultSecret)
		if err != nil {
			return false, err
		}
		if secret != candidate {
			a.audit.logFailure(ctx, AuditLoginFailure, identity, "wrong password")
			resp.Set(protocol.FieldInfo, infoWrongSecret)
			return false, nil
		}
		a.state.grantLocked(identity)
		a.audit.log(ctx, AuditLoginSuccess, identity)
		resp.Set(protocol.FieldInfo, infoAccessGranted)
		return false, nil

	default:
		resp.Set(protocol.FieldInfo, infoSecretRequired)
		return false, nil
	}
}
