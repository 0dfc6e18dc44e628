// Package hooks runs operator scripts when lifecycle notices are emitted.
package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"subuk/gamemango/lifecycle"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultTimeout = time.Minute

type subscription struct {
	Kind   string
	Script string
}

// ScriptNotifier is a lifecycle.Notifier. Scripts run in the background
// with the notice exported as GAMEMANGO_* environment variables.
type ScriptNotifier struct {
	logger  zerolog.Logger
	timeout time.Duration
	subs    []subscription
	wg      sync.WaitGroup
}

func NewScriptNotifier(timeout time.Duration, logger zerolog.Logger) *ScriptNotifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ScriptNotifier{
		logger:  logger.With().Str("component", "hooks").Logger(),
		timeout: timeout,
		subs:    []subscription{},
	}
}

// Subscribe runs script on every notice of kind, e.g. "server_closed".
// The kind "*" matches every notice.
func (notifier *ScriptNotifier) Subscribe(kind, script string) {
	notifier.subs = append(notifier.subs, subscription{Kind: kind, Script: script})
}

func (notifier *ScriptNotifier) Notify(notice lifecycle.Notice) {
	for _, sub := range notifier.subs {
		if sub.Kind != "*" && sub.Kind != notice.Kind.String() {
			continue
		}
		notifier.wg.Add(1)
		go func(sub subscription) {
			defer notifier.wg.Done()
			notifier.run(sub, notice)
		}(sub)
	}
}

// Wait blocks until every started script has exited.
func (notifier *ScriptNotifier) Wait() {
	notifier.wg.Wait()
}

func (notifier *ScriptNotifier) run(sub subscription, notice lifecycle.Notice) {
	ctx, cancel := context.WithTimeout(context.Background(), notifier.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", sub.Script)
	env := os.Environ()
	for key, value := range plain(notice) {
		env = append(env, "GAMEMANGO_"+strings.ToUpper(key)+"="+value)
	}
	cmd.Env = env
	// sh may leave children holding the output pipe after a kill
	cmd.WaitDelay = time.Second
	logger := notifier.logger.With().Str("script", sub.Script).Str("notice", notice.Kind.String()).Str("server", notice.Server).Logger()
	logger.Info().Msg("running script")

	out, err := cmd.CombinedOutput()
	if err != nil {
		logger.Warn().Err(err).Str("out", strings.TrimSpace(string(out))).Msg("cannot run script")
	}
}

func plain(notice lifecycle.Notice) map[string]string {
	data := map[string]string{
		"notice": notice.Kind.String(),
		"server": notice.Server,
		"op":     notice.Op,
		"online": fmt.Sprintf("%d", notice.Online),
	}
	if notice.Kind == lifecycle.NoticeInstanceNotRunning || notice.Kind == lifecycle.NoticePleaseWaitInstanceState {
		data["state"] = notice.State.String()
	}
	if notice.Err != nil {
		data["error"] = notice.Err.Error()
	}
	if notice.Elapsed > 0 {
		data["elapsed_seconds"] = fmt.Sprintf("%d", int(notice.Elapsed.Seconds()))
	}
	if notice.Info != nil {
		data["ip"] = notice.Info.Ip
		data["port"] = fmt.Sprintf("%d", notice.Info.Port)
		data["max"] = fmt.Sprintf("%d", notice.Info.Max)
		data["players"] = strings.Join(notice.Info.Players, ",")
	}
	return data
}
