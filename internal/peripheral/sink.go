package peripheral

// NotificationSink receives human-readable event strings.
type NotificationSink interface {
	Notify(message string)
}

// SinkFunc adapts a function to NotificationSink.
type SinkFunc func(message string)

func (f SinkFunc) Notify(message string) { f(message) }

type discardSink struct{}

func (discardSink) Notify(string) {}
