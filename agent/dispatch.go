package agent

import (
	"context"
	"log/slog"

	"github.com/jmcleod/remotehand/actuator"
	"github.com/jmcleod/remotehand/protocol"
)

// exchange carries one authorized request through its handler.
type exchange struct {
	identity string
	req      protocol.Request
	resp     *protocol.Response
	intent   actuator.Intent
}

// handlerFunc runs one command. The boolean becomes the response's result
// field; a non-nil error replaces it with an error field.
type handlerFunc func(ctx context.Context, x *exchange) (bool, error)

// dispatch routes an authorized request by its "request" field.
func (a *Agent) dispatch(ctx context.Context, identity string, req protocol.Request, resp *protocol.Response) error {
	intent, err := intentFrom(req)
	if err != nil {
		return err
	}

	name, err := req.String("request")
	if err != nil {
		return err
	}

	handler, ok := a.handlers[name]
	if !ok {
		// Unknown commands get no result field at all.
		resp.Set(protocol.FieldInfo, "{"+name+"} is not found")
		return nil
	}

	a.logger.Debug("dispatching command", "identity", identity, "request", name)
	result, err := handler(ctx, &exchange{
		identity: identity,
		req:      req,
		resp:     resp,
		intent:   intent,
	})
	if err != nil {
		a.audit.logFailure(ctx, AuditCommandFailed, identity, err.Error(), slog.String("request", name))
		return err
	}
	resp.Set(protocol.FieldResult, result)
	return nil
}

// intentFrom builds the action descriptor from the action, key and value
// fields. The key/value pair is only taken when both are present.
func intentFrom(req protocol.Request) (actuator.Intent, error) {
	var intent actuator.Intent
	if !req.Has("action") {
		return intent, nil
	}
	action, err := req.String("action")
	if err != nil {
		return intent, err
	}
	intent.Action = action

	if req.Has("key") && req.Has("value") {
		if intent.Key, err = req.String("key"); err != nil {
			return intent, err
		}
		if intent.Value, err = req.String("value"); err != nil {
			return intent, err
		}
	}
	return intent, nil
}

// commandTable is the closed set of commands an authorized client may send.
func (a *Agent) commandTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		"sayHello":               a.sayHello,
		"commands":               a.listCommands,
		"makeToast":              a.makeToast,
		"makeNotification":       a.makeNotification,
		"cancelNotification":     a.cancelNotification,
		"lockNow":                a.lockNow,
		"resetPassword":          a.resetPassword,
		"setVolume":              a.setVolume,
		"sendBroadcast":          a.sendBroadcast,
		"startService":           a.startService,
		"startActivity":          a.startActivity,
		"vibrate":                a.vibrate,
		"reboot":                 a.reboot,
		"runCommand":             a.runCommand,
		"sendSMS":                a.sendSMS,
		"send":                   a.send,
		"tts":                    a.tts,
		"ttsExit":                a.ttsExit,
		"wifiPower":              a.wifiPower,
		"bluetoothPower":         a.bluetoothPower,
		"ringerMode":             a.ringerMode,
		"changeAccessPassword":   a.changeAccessPassword,
		"applyPasswordResetFile": a.applyPasswordResetFileCmd,
		"getPRFile":              a.getPRFile,
		"setDeviceName":          a.setDeviceName,
		"getGrantedList":         a.getGrantedList,
		"exit":                   a.exit,
		"wipeData":               a.wipeData,
		"addConnection":          a.addConnection,
		"getConnections":         a.getConnections,
		"removeAllConnections":   a.removeAllConnections,
		"sendToAllConnections":   a.sendToAllConnections,
		"spyMessages":            a.spyMessages,
		"notifyRequests":         a.notifyRequests,
		"toggleTabs":             a.toggleTabs,
		"adminMode":              a.adminMode,
	}
}
