package observability

import (
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		BeforeSend:       scrubCredentials,
	})
}

// scrubCredentials keeps bearer tokens and cookies out of reported events.
func scrubCredentials(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request == nil {
		return event
	}
	for name := range event.Request.Headers {
		switch strings.ToLower(name) {
		case "authorization", "cookie":
			event.Request.Headers[name] = "[redacted]"
		}
	}
	event.Request.Cookies = ""
	event.Request.Data = ""
	return event
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports err to Sentry and mirrors it to the log, so faults stay
// visible when no DSN is configured.
func CaptureError(logger *Logger, message string, err error, fields map[string]any) {
	if err == nil {
		return
	}

	sentry.CaptureException(err)

	payload := map[string]any{"error": err.Error()}
	for k, v := range fields {
		payload[k] = v
	}
	logger.Error(message, payload)
}
