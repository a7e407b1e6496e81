package peripheral

import "fmt"

// CommandCode is the first byte written to the command characteristic.
type CommandCode byte

const (
	CommandStandBy CommandCode = 0
	CommandOn      CommandCode = 1
)

func (c CommandCode) String() string {
	switch c {
	case CommandStandBy:
		return "standby"
	case CommandOn:
		return "on"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(c))
	}
}

// ParseCommand decodes the first byte of payload. It returns ErrEmptyPayload
// for a zero-length payload and ErrUnknownCommand (with the decoded code) for
// any byte other than StandBy or On.
func ParseCommand(payload []byte) (CommandCode, error) {
	if len(payload) == 0 {
		return 0, ErrEmptyPayload
	}
	code := CommandCode(payload[0])
	switch code {
	case CommandStandBy, CommandOn:
		return code, nil
	default:
		return code, fmt.Errorf("%w: 0x%02x", ErrUnknownCommand, payload[0])
	}
}
