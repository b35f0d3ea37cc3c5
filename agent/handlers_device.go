package agent

import (
	"context"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/jmcleod/remotehand/actuator"
	"github.com/jmcleod/remotehand/protocol"
	"github.com/jmcleod/remotehand/relay"
)

const (
	defaultVibration   = 100 * time.Millisecond
	resetFileVibration = time.Second
)

func (a *Agent) sayHello(_ context.Context, x *exchange) (bool, error) {
	device := a.exec.Device()
	x.resp.Set("versionName", a.versionName)
	x.resp.Set("versionCode", a.versionCode)
	x.resp.Set("device", device.Brand+" "+device.Model)
	return true, nil
}

func (a *Agent) makeToast(ctx context.Context, x *exchange) (bool, error) {
	msg, err := x.req.String("message")
	if err != nil {
		return false, err
	}
	return true, a.exec.Toast(ctx, msg)
}

func (a *Agent) makeNotification(ctx context.Context, x *exchange) (bool, error) {
	var (
		n   actuator.Notification
		err error
	)
	if n.ID, err = x.req.Int("id"); err != nil {
		return false, err
	}
	if n.Title, err = x.req.String("title"); err != nil {
		return false, err
	}
	if n.Content, err = x.req.String("content"); err != nil {
		return false, err
	}
	if n.Info, err = x.req.String("info"); err != nil {
		return false, err
	}
	if n.Ticker, err = x.req.OptString("ticker", ""); err != nil {
		return false, err
	}
	return true, a.exec.Notify(ctx, n)
}

func (a *Agent) cancelNotification(ctx context.Context, x *exchange) (bool, error) {
	id, err := x.req.Int("id")
	if err != nil {
		return false, err
	}
	return true, a.exec.CancelNotification(ctx, id)
}

func (a *Agent) lockNow(ctx context.Context, _ *exchange) (bool, error) {
	return true, a.exec.LockNow(ctx)
}

func (a *Agent) resetPassword(ctx context.Context, x *exchange) (bool, error) {
	pw, err := x.req.String("password")
	if err != nil {
		return false, err
	}
	return a.exec.ResetPassword(ctx, pw)
}

func (a *Agent) setVolume(ctx context.Context, x *exchange) (bool, error) {
	volume, err := x.req.Int("volume")
	if err != nil {
		return false, err
	}
	return true, a.exec.SetVolume(ctx, volume)
}

func (a *Agent) sendBroadcast(ctx context.Context, x *exchange) (bool, error) {
	return true, a.exec.SendBroadcast(ctx, x.intent)
}

func (a *Agent) startService(ctx context.Context, x *exchange) (bool, error) {
	return true, a.exec.StartService(ctx, x.intent)
}

func (a *Agent) startActivity(ctx context.Context, x *exchange) (bool, error) {
	return true, a.exec.StartActivity(ctx, x.intent)
}

func (a *Agent) vibrate(ctx context.Context, x *exchange) (bool, error) {
	d := defaultVibration
	if x.req.Has("time") {
		ms, err := x.req.Int64("time")
		if err != nil {
			return false, err
		}
		d = time.Duration(ms) * time.Millisecond
	}
	return true, a.exec.Vibrate(ctx, d)
}

func (a *Agent) reboot(ctx context.Context, _ *exchange) (bool, error) {
	return true, a.exec.Reboot(ctx, "Virtual user requested")
}

func (a *Agent) runCommand(ctx context.Context, x *exchange) (bool, error) {
	command, err := x.req.String("command")
	if err != nil {
		return false, err
	}
	if err := a.exec.RunCommand(ctx, command); err != nil {
		return false, err
	}
	a.audit.log(ctx, AuditCommandRun, x.identity)
	return true, nil
}

func (a *Agent) sendSMS(ctx context.Context, x *exchange) (bool, error) {
	number, err := x.req.String("number")
	if err != nil {
		return false, err
	}
	text, err := x.req.String("text")
	if err != nil {
		return false, err
	}
	return true, a.exec.SendSMS(ctx, number, text)
}

// send delivers one message to an arbitrary socket and reports whether the
// write went through.
func (a *Agent) send(ctx context.Context, x *exchange) (bool, error) {
	server, err := x.req.String("server")
	if err != nil {
		return false, err
	}
	port, err := x.req.Int("port")
	if err != nil {
		return false, err
	}
	msg, err := x.req.String("message")
	if err != nil {
		return false, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, a.relays.SendTimeout())
	defer cancel()
	sendErr := relay.NewSocketTarget(server, port).Send(sendCtx, msg)
	if sendErr != nil {
		a.logger.Debug("send failed", "server", server, "port", port, "error", sendErr)
	}
	x.resp.Set("isSent", sendErr == nil)
	return true, nil
}

// tts speaks a message once the speech engine is loaded. The first call
// only starts loading the engine.
func (a *Agent) tts(ctx context.Context, x *exchange) (bool, error) {
	if !a.exec.SpeechReady() {
		if err := a.exec.StartSpeech(ctx); err != nil {
			return false, err
		}
		x.resp.Set(protocol.FieldInfo, "TTS service is now loading")
		return true, nil
	}

	// An unparsable language keeps the engine on English and is echoed back
	// as sent.
	tag, name := language.English, ""
	if x.req.Has("language") {
		raw, err := x.req.String("language")
		if err != nil {
			return false, err
		}
		if parsed, err := language.Parse(raw); err == nil {
			tag = parsed
		} else {
			a.logger.Debug("unknown speech language", "language", raw, "error", err)
			name = raw
		}
	}
	if name == "" {
		name = display.English.Languages().Name(tag)
	}
	msg, err := x.req.String("message")
	if err != nil {
		return false, err
	}
	if err := a.exec.Speak(ctx, tag, msg); err != nil {
		return false, err
	}
	x.resp.Set("language", "@"+name)
	x.resp.Set("speak", "@"+msg)
	return true, nil
}

func (a *Agent) ttsExit(_ context.Context, _ *exchange) (bool, error) {
	return a.exec.StopSpeech(), nil
}

func (a *Agent) wifiPower(ctx context.Context, x *exchange) (bool, error) {
	previous, err := a.exec.WifiState(ctx)
	if err != nil {
		return false, err
	}
	x.resp.Set("previousState", previous)

	power, err := x.req.Bool("power")
	if err != nil {
		return false, err
	}
	return a.exec.SetWifi(ctx, power)
}

// bluetoothPower switches the radio only when the requested state differs
// from the current one; the result is false when nothing had to change.
func (a *Agent) bluetoothPower(ctx context.Context, x *exchange) (bool, error) {
	enabled, err := a.exec.BluetoothEnabled(ctx)
	if err != nil {
		return false, err
	}
	power, err := x.req.Bool("power")
	if err != nil {
		return false, err
	}
	x.resp.Set("previousState", enabled)

	if power == enabled {
		return false, nil
	}
	return a.exec.SetBluetooth(ctx, power)
}

func (a *Agent) ringerMode(ctx context.Context, x *exchange) (bool, error) {
	raw, err := x.req.String("mode")
	if err != nil {
		return false, err
	}
	mode, ok := actuator.ParseRingerMode(raw)
	if !ok {
		x.resp.Set(protocol.FieldError, "Mode could not be set. Mode values can only be vibrate|silent|normal")
		return false, nil
	}
	return true, a.exec.SetRingerMode(ctx, mode)
}
