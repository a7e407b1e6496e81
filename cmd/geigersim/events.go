package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/srg/geigersim/internal/eventlog"
	"github.com/srg/geigersim/internal/groutine"
	"github.com/srg/geigersim/internal/peripheral"
	"github.com/srg/geigersim/pkg/config"
)

// eventPipeline fans peripheral events out to a console printer, fed through
// a non-blocking stream, and to a bounded history.
type eventPipeline struct {
	stream  *eventlog.Stream
	history *eventlog.History
	console *eventlog.Console
	sink    peripheral.NotificationSink
	done    chan struct{}
	logger  *logrus.Logger
}

func newEventPipeline(cfg *config.Config, out io.Writer, color bool, logger *logrus.Logger, extra ...peripheral.NotificationSink) (*eventPipeline, error) {
	history, err := eventlog.NewHistory(cfg.EventHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to create event history: %w", err)
	}

	p := &eventPipeline{
		stream:  eventlog.NewStream(cfg.EventBuffer),
		history: history,
		console: eventlog.NewConsole(out, !color),
		done:    make(chan struct{}),
		logger:  logger,
	}
	sinks := append([]peripheral.NotificationSink{p.stream, p.history}, extra...)
	p.sink = eventlog.Tee(sinks...)

	groutine.Go(context.Background(), "event-console", func(context.Context) {
		defer close(p.done)
		p.console.Pump(p.stream.Events())
	})
	return p, nil
}

// Close flushes buffered events to the console.
func (p *eventPipeline) Close() {
	p.stream.Close()
	<-p.done

	m := p.stream.Metrics()
	p.logger.WithFields(logrus.Fields{
		"written":     m.Written,
		"overwritten": m.Overwritten,
		"retained":    p.history.Len(),
	}).Debug("Event pipeline closed")
}

// printHistory writes the retained events, oldest first.
func (p *eventPipeline) printHistory(w io.Writer) {
	events := p.history.Recent()
	fmt.Fprintf(w, "Recent events (%d):\n", len(events))
	for _, ev := range events {
		fmt.Fprintf(w, "  %s\n", ev)
	}
}
