// Package telemetry initializes optional Sentry error reporting.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/rtp-recorder/internal/buildinfo"
	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/privacy"
)

const flushTimeout = 2 * time.Second

// allowedExtra lists the event extras kept by the privacy filter.
var allowedExtra = map[string]bool{"error_type": true, "component": true}

// InitSentry initializes the Sentry SDK and installs the error reporter when
// sentry.enabled is set. It returns a flush function that is always safe to call.
func InitSentry(settings *conf.Settings) (func(), error) {
	noop := func() {}
	if !settings.Sentry.Enabled {
		errors.SetTelemetryReporter(nil)
		return noop, nil
	}
	if settings.Sentry.DSN == "" {
		return noop, errors.New(errors.NewStd("sentry.dsn is required when sentry is enabled")).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          "rtp-recorder@" + buildinfo.Current().GetVersion(),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return noop, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("dsn", privacy.RedactURL(settings.Sentry.DSN)).
			Build()
	}

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	return func() {
		sentry.Flush(flushTimeout)
	}, nil
}

// applyPrivacyFilters strips host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if !allowedExtra[k] {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	return event
}
