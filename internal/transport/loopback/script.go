package loopback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/geigersim/internal/groutine"
	"github.com/srg/geigersim/internal/peripheral"
)

// StepKind names a scripted central action.
type StepKind string

const (
	StepSubscribe   StepKind = "subscribe"
	StepUnsubscribe StepKind = "unsubscribe"
	StepRead        StepKind = "read"
	StepWrite       StepKind = "write"
	StepWait        StepKind = "wait"
)

// Step is one action. Value is the command byte of a write, Duration the
// length of a wait.
type Step struct {
	Kind     StepKind
	Value    byte
	Duration time.Duration
}

func (s Step) String() string {
	switch s.Kind {
	case StepWrite:
		return fmt.Sprintf("write %d", s.Value)
	case StepWait:
		return fmt.Sprintf("wait %s", s.Duration)
	default:
		return string(s.Kind)
	}
}

// ParseStep parses "subscribe", "unsubscribe", "read", "write <0-255>" or
// "wait <duration>".
func ParseStep(text string) (Step, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Step{}, errors.New("empty step")
	}

	kind := StepKind(strings.ToLower(fields[0]))
	args := fields[1:]
	switch kind {
	case StepSubscribe, StepUnsubscribe, StepRead:
		if len(args) != 0 {
			return Step{}, fmt.Errorf("step %q takes no arguments", kind)
		}
		return Step{Kind: kind}, nil
	case StepWrite:
		if len(args) != 1 {
			return Step{}, fmt.Errorf("step %q needs one byte value", kind)
		}
		v, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil {
			return Step{}, fmt.Errorf("invalid write value %q: %w", args[0], err)
		}
		return Step{Kind: kind, Value: byte(v)}, nil
	case StepWait:
		if len(args) != 1 {
			return Step{}, fmt.Errorf("step %q needs a duration", kind)
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return Step{}, fmt.Errorf("invalid wait duration %q: %w", args[0], err)
		}
		if d < 0 {
			return Step{}, fmt.Errorf("negative wait duration %s", d)
		}
		return Step{Kind: kind, Duration: d}, nil
	default:
		return Step{}, fmt.Errorf("unknown step %q", fields[0])
	}
}

// Script is an ordered list of steps run against one central.
type Script []Step

// ParseScript parses one step per entry.
func ParseScript(lines []string) (Script, error) {
	script := make(Script, 0, len(lines))
	for i, line := range lines {
		step, err := ParseStep(line)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		script = append(script, step)
	}
	return script, nil
}

// Run executes the script. Protocol rejections are logged, transport
// errors abort the run.
func (s Script) Run(ctx context.Context, c *Central, logger *logrus.Logger) error {
	log := logger.WithField("central", c.ID())
	if name := groutine.Name(ctx); name != "" {
		log = log.WithField("goroutine", name)
	}
	for _, step := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.WithField("step", step.String()).Debug("Running script step")

		switch step.Kind {
		case StepSubscribe:
			if err := c.Subscribe(peripheral.RadiationCharUUID); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
		case StepUnsubscribe:
			if err := c.Unsubscribe(peripheral.RadiationCharUUID); err != nil {
				return fmt.Errorf("unsubscribe: %w", err)
			}
		case StepRead:
			value, status, err := c.Read(peripheral.BatteryLevelCharUUID)
			if err != nil {
				return fmt.Errorf("read battery level: %w", err)
			}
			if status != peripheral.StatusSuccess {
				log.WithField("status", status).Warn("Battery read rejected")
				continue
			}
			level, err := peripheral.DecodeLevel(value)
			if err != nil {
				return fmt.Errorf("read battery level: %w", err)
			}
			log.WithField("level", level).Info("Battery level read")
		case StepWrite:
			status, err := c.Write(peripheral.CommandCharUUID, []byte{step.Value})
			if err != nil {
				return fmt.Errorf("write command %d: %w", step.Value, err)
			}
			log.WithFields(logrus.Fields{
				"command": peripheral.CommandCode(step.Value).String(),
				"status":  status.String(),
			}).Info("Command written")
		case StepWait:
			timer := time.NewTimer(step.Duration)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}
