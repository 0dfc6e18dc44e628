package lifecycle

import (
	"subuk/gamemango/compute"
	"subuk/gamemango/manager"
	"time"
)

type NoticeKind int

const (
	NoticeInstanceStarting = NoticeKind(iota)
	NoticeInstanceStartedWaitingServer
	NoticeServerOpened
	NoticePleaseWaitInstanceState
	NoticeErrorStarting
	NoticeErrorDescribing
	NoticeWatchGaveUp
	NoticeInstanceNotRunning
	NoticeServerNotEmpty
	NoticeClosingServer
	NoticeServerClosed
	NoticeErrorClosing
	NoticeOperationInProgress
	NoticeStats
	NoticeGenericError
)

// String returns the message key of the notice.
func (kind NoticeKind) String() string {
	switch kind {
	default:
		return "generic_error"
	case NoticeInstanceStarting:
		return "instance_starting"
	case NoticeInstanceStartedWaitingServer:
		return "instance_started_waiting_server"
	case NoticeServerOpened:
		return "server_opened"
	case NoticePleaseWaitInstanceState:
		return "please_wait_instance_state"
	case NoticeErrorStarting:
		return "error_starting"
	case NoticeErrorDescribing:
		return "error_describing"
	case NoticeWatchGaveUp:
		return "watch_gave_up"
	case NoticeInstanceNotRunning:
		return "instance_not_running"
	case NoticeServerNotEmpty:
		return "server_not_empty"
	case NoticeClosingServer:
		return "closing_server"
	case NoticeServerClosed:
		return "server_closed"
	case NoticeErrorClosing:
		return "error_closing"
	case NoticeOperationInProgress:
		return "operation_in_progress"
	case NoticeStats:
		return "stats"
	}
}

// Progress reports whether the notice updates an ongoing open sequence
// rather than starting a new message.
func (kind NoticeKind) Progress() bool {
	switch kind {
	case NoticeInstanceStarting, NoticeInstanceStartedWaitingServer, NoticeServerOpened:
		return true
	}
	return false
}

type Notice struct {
	Kind   NoticeKind
	Server string
	Op     string
	Info   *manager.ServerInfo
	State  compute.InstanceState
	Online int
	Err    error
	// Elapsed is set on server_opened.
	Elapsed time.Duration
}

type Notifier interface {
	Notify(notice Notice)
}

type NotifierFunc func(notice Notice)

func (f NotifierFunc) Notify(notice Notice) {
	f(notice)
}

type multiNotifier []Notifier

func (notifiers multiNotifier) Notify(notice Notice) {
	for _, notifier := range notifiers {
		if notifier != nil {
			notifier.Notify(notice)
		}
	}
}
