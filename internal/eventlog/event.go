// Package eventlog provides notification sinks for peripheral events: a
// non-blocking live stream, a bounded history of recent events, a console
// printer, and a fan-out combinator.
package eventlog

import (
	"fmt"
	"time"

	"github.com/srg/geigersim/internal/peripheral"
)

// Event is one notification with the time it was emitted.
type Event struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Time.Format("15:04:05.000"), e.Message)
}

// Tee fans a notification out to every non-nil sink in order.
func Tee(sinks ...peripheral.NotificationSink) peripheral.NotificationSink {
	live := make([]peripheral.NotificationSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return tee(live)
}

type tee []peripheral.NotificationSink

func (t tee) Notify(message string) {
	for _, s := range t {
		s.Notify(message)
	}
}
