package peripheral

import (
	"fmt"

	"github.com/google/uuid"
)

// CentralID identifies a remote central for the lifetime of its connection.
type CentralID string

// Status is the protocol-level outcome of a read or write request.
type Status int

const (
	StatusSuccess Status = iota
	StatusRequestNotSupported
	StatusReadNotPermitted
	StatusWriteNotPermitted
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRequestNotSupported:
		return "request not supported"
	case StatusReadNotPermitted:
		return "read not permitted"
	case StatusWriteNotPermitted:
		return "write not permitted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Latency is a desired connection-latency class for one central.
type Latency int

const (
	LatencyLow Latency = iota
	LatencyMedium
	LatencyHigh
)

// Request is an inbound attribute read or write. The handler fills Value for
// reads before responding.
type Request struct {
	ID             uint64
	Central        CentralID
	Characteristic uuid.UUID
	Offset         int
	Value          []byte
}

// EventHandler receives radio callbacks. Peripheral implements it.
type EventHandler interface {
	OnPowerStateChange(state PowerState)
	OnAdvertisingStarted(err error)
	OnSubscribe(char uuid.UUID, central CentralID)
	OnUnsubscribe(char uuid.UUID, central CentralID)
	OnReadRequest(req *Request)
	OnWriteRequest(req *Request)
}

// Transport is the radio capability the core drives.
//
// Implementations must not invoke EventHandler methods synchronously from
// inside any Transport method: the core calls Transport from its executor
// and the handler methods wait on that same executor.
type Transport interface {
	SetHandler(h EventHandler)

	AddService(svc *ServiceDefinition) error
	RemoveAllServices() error

	StartAdvertising(name string, services []uuid.UUID) error
	StopAdvertising() error

	// UpdateValue sends payload as a notification to the given centrals. It
	// returns false if the outbound queue has no room; nothing is sent then.
	UpdateValue(char uuid.UUID, payload []byte, centrals []CentralID) bool

	// Respond completes a pending request with the given status.
	Respond(req *Request, status Status)

	SetDesiredConnectionLatency(latency Latency, central CentralID) error
}
