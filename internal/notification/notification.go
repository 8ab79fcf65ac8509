// Package notification sends push notifications for recording failures
// through shoutrrr.
package notification

import (
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/events"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/privacy"
)

const defaultSendTimeout = 10 * time.Second

// Sender delivers a message to every configured service.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// NewSender builds a shoutrrr router for urls with a quiet logger.
func NewSender(urls []string, timeout time.Duration) (Sender, error) {
	if len(urls) == 0 {
		return nil, errors.New(errors.NewStd("at least one notification URL is required")).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// the error may echo a URL with a token in it
		return nil, errors.New(errors.NewStd(privacy.ScrubMessage(err.Error()))).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	sender.Timeout = timeout
	sender.SetLogger(log.New(io.Discard, "", 0))
	return sender, nil
}

// Notifier is an event bus consumer that pushes failed lifecycle events.
type Notifier struct {
	sender   Sender
	instance string
	types    []events.Type
	logger   logger.Logger
}

var _ events.EventConsumer = (*Notifier)(nil)

// NewNotifier returns a Notifier. instance names this recorder in titles.
func NewNotifier(sender Sender, instance string, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Notifier{
		sender:   sender,
		instance: instance,
		types:    []events.Type{events.TypeFailed},
		logger:   log,
	}
}

func (n *Notifier) Name() string { return "notification" }

// ProcessEvent sends a notification for failure events and ignores the rest.
func (n *Notifier) ProcessEvent(e events.LifecycleEvent) error {
	if !slices.Contains(n.types, e.Type) {
		return nil
	}

	params := stypes.Params{}
	params.SetTitle(n.title(e))
	errs := n.sender.Send(n.message(e), &params)

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, errors.NewStd(privacy.ScrubMessage(err.Error())))
		}
	}
	if len(failed) > 0 {
		return errors.New(errors.Join(failed...)).
			Component("notification").
			Category(errors.CategoryIntegration).
			Context("mid", e.MID).
			Build()
	}
	n.logger.Debug("notification sent",
		logger.String("mid", e.MID),
		logger.String("stage", e.Stage))
	return nil
}

func (n *Notifier) title(e events.LifecycleEvent) string {
	title := fmt.Sprintf("Recording %s failed for %s", stageLabel(e.Stage), e.MID)
	if n.instance != "" {
		title = "[" + n.instance + "] " + title
	}
	return title
}

func (n *Notifier) message(e events.LifecycleEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feed %s: %s", e.MID, e.Error)
	if e.OutputFile != "" {
		fmt.Fprintf(&b, "\nFile %s is retained locally.", e.OutputFile)
	}
	if e.ExitCode != nil {
		fmt.Fprintf(&b, "\nCapture exit code %d.", *e.ExitCode)
	}
	if !e.Timestamp.IsZero() {
		fmt.Fprintf(&b, "\nAt %s.", e.Timestamp.Format(time.RFC3339))
	}
	return privacy.ScrubMessage(b.String())
}

func stageLabel(stage string) string {
	switch stage {
	case events.StageSpawn:
		return "start"
	case events.StageCapture:
		return "capture"
	case events.StageUpload:
		return "upload"
	default:
		return "step"
	}
}
