package eventlog

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Console prints events as "15:04:05.000 message" lines, colored by kind.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time

	stamp   *color.Color
	failure *color.Color
	central *color.Color
	command *color.Color
	service *color.Color
}

// NewConsole writes to out; noColor disables escape sequences.
func NewConsole(out io.Writer, noColor bool) *Console {
	c := &Console{
		out:     out,
		now:     time.Now,
		stamp:   color.New(color.Faint),
		failure: color.New(color.FgRed, color.Bold),
		central: color.New(color.FgGreen),
		command: color.New(color.FgYellow),
		service: color.New(color.FgCyan),
	}
	for _, col := range []*color.Color{c.stamp, c.failure, c.central, c.command, c.service} {
		if noColor {
			col.DisableColor()
		} else {
			col.EnableColor()
		}
	}
	return c
}

func (c *Console) Notify(message string) {
	c.Print(Event{Time: c.now(), Message: message})
}

// Print writes a single event.
func (c *Console) Print(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, "%s %s\n", c.stamp.Sprint(ev.Time.Format("15:04:05.000")), c.colorFor(ev.Message).Sprint(ev.Message))
}

// Pump prints events until the channel is closed.
func (c *Console) Pump(events <-chan Event) {
	for ev := range events {
		c.Print(ev)
	}
}

func (c *Console) colorFor(message string) *color.Color {
	switch {
	case strings.HasPrefix(message, "Error"), strings.HasPrefix(message, "Rejected"):
		return c.failure
	case strings.HasPrefix(message, "Central"):
		return c.central
	case strings.HasPrefix(message, "Received command"), strings.HasPrefix(message, "New battery"):
		return c.command
	default:
		return c.service
	}
}
