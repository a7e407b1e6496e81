package peripheral

import (
	"strings"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// GATT identifiers of the radiation-sensor profile.
var (
	GeigerServiceUUID    = uuid.MustParse("190124d9-bb53-4acb-9c48-f4d5f8c81668")
	RadiationCharUUID    = uuid.MustParse("00002a58-0000-1000-8000-00805f9b34fb")
	CommandCharUUID      = uuid.MustParse("190124da-bb53-4acb-9c48-f4d5f8c81668")
	BatteryServiceUUID   = uuid.MustParse("0000180f-0000-1000-8000-00805f9b34fb")
	BatteryLevelCharUUID = uuid.MustParse("00002a19-0000-1000-8000-00805f9b34fb")
)

// Property is a characteristic capability flag. Values match the GATT
// characteristic properties bit field.
type Property uint8

const (
	PropRead   Property = 0x02
	PropWrite  Property = 0x08
	PropNotify Property = 0x10
)

// Has reports whether all bits of q are set.
func (p Property) Has(q Property) bool {
	return p&q == q
}

// Names returns the set flags in bit order.
func (p Property) Names() []string {
	names := make([]string, 0, 3)
	if p.Has(PropRead) {
		names = append(names, "read")
	}
	if p.Has(PropWrite) {
		names = append(names, "write")
	}
	if p.Has(PropNotify) {
		names = append(names, "notify")
	}
	return names
}

// Permission is an attribute access policy flag.
type Permission uint8

const (
	PermReadable Permission = 1 << iota
	PermWriteable
	PermReadEncrypted
	PermWriteEncrypted
)

// Has reports whether all bits of q are set.
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

// Names returns the set flags in bit order.
func (p Permission) Names() []string {
	names := make([]string, 0, 4)
	if p.Has(PermReadable) {
		names = append(names, "readable")
	}
	if p.Has(PermWriteable) {
		names = append(names, "writeable")
	}
	if p.Has(PermReadEncrypted) {
		names = append(names, "read-encrypted")
	}
	if p.Has(PermWriteEncrypted) {
		names = append(names, "write-encrypted")
	}
	return names
}

// CharacteristicDefinition describes one characteristic. Value is the current
// value buffer and is only mutated by the executor.
type CharacteristicDefinition struct {
	UUID        uuid.UUID
	Name        string
	Properties  Property
	Permissions Permission
	Description string
	Value       []byte
}

// ServiceDefinition is an immutable service with an ordered characteristic table.
type ServiceDefinition struct {
	UUID    uuid.UUID
	Name    string
	Primary bool

	chars *orderedmap.OrderedMap[uuid.UUID, *CharacteristicDefinition]
}

// NewServiceDefinition builds a service; characteristics keep the given order.
func NewServiceDefinition(id uuid.UUID, name string, primary bool, chars ...*CharacteristicDefinition) *ServiceDefinition {
	table := orderedmap.New[uuid.UUID, *CharacteristicDefinition]()
	for _, c := range chars {
		table.Set(c.UUID, c)
	}
	return &ServiceDefinition{
		UUID:    id,
		Name:    name,
		Primary: primary,
		chars:   table,
	}
}

// Characteristics returns the characteristics in declaration order.
func (s *ServiceDefinition) Characteristics() []*CharacteristicDefinition {
	out := make([]*CharacteristicDefinition, 0, s.chars.Len())
	for pair := s.chars.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Characteristic looks up a characteristic of this service by UUID.
func (s *ServiceDefinition) Characteristic(id uuid.UUID) (*CharacteristicDefinition, bool) {
	return s.chars.Get(id)
}

// ServiceCatalog is the GATT topology published for one advertising cycle.
// A new catalog is built on every advertising start.
type ServiceCatalog struct {
	Geiger  *ServiceDefinition
	Battery *ServiceDefinition

	Radiation    *CharacteristicDefinition
	Command      *CharacteristicDefinition
	BatteryLevel *CharacteristicDefinition
}

// NewServiceCatalog constructs a fresh catalog with empty value buffers.
func NewServiceCatalog() *ServiceCatalog {
	radiation := &CharacteristicDefinition{
		UUID:        RadiationCharUUID,
		Name:        "Radiation",
		Properties:  PropNotify,
		Permissions: PermReadable,
		Description: "Radiation level, float32 little-endian",
	}
	command := &CharacteristicDefinition{
		UUID:        CommandCharUUID,
		Name:        "Command",
		Properties:  PropWrite,
		Permissions: PermWriteable | PermWriteEncrypted,
		Description: "Command: 0 = standby, 1 = on",
	}
	level := &CharacteristicDefinition{
		UUID:        BatteryLevelCharUUID,
		Name:        "Battery Level",
		Properties:  PropRead,
		Permissions: PermReadable,
		Description: "Battery level between 0 and 100 percent",
	}

	return &ServiceCatalog{
		Geiger:       NewServiceDefinition(GeigerServiceUUID, "Geiger", true, radiation, command),
		Battery:      NewServiceDefinition(BatteryServiceUUID, "Battery", true, level),
		Radiation:    radiation,
		Command:      command,
		BatteryLevel: level,
	}
}

// Services returns the services in publication order.
func (c *ServiceCatalog) Services() []*ServiceDefinition {
	return []*ServiceDefinition{c.Geiger, c.Battery}
}

// AdvertisedUUIDs returns the service UUID list carried in the advertising payload.
func (c *ServiceCatalog) AdvertisedUUIDs() []uuid.UUID {
	return []uuid.UUID{c.Geiger.UUID, c.Battery.UUID}
}

// Lookup finds a characteristic in any service of the catalog.
func (c *ServiceCatalog) Lookup(id uuid.UUID) (*CharacteristicDefinition, bool) {
	for _, svc := range c.Services() {
		if def, ok := svc.Characteristic(id); ok {
			return def, true
		}
	}
	return nil, false
}

// CharacteristicDescription is the serializable form of a characteristic.
type CharacteristicDescription struct {
	UUID        string   `json:"uuid"`
	Name        string   `json:"name"`
	Properties  []string `json:"properties"`
	Permissions []string `json:"permissions"`
	Description string   `json:"description"`
}

// ServiceDescription is the serializable form of a service.
type ServiceDescription struct {
	UUID            string                      `json:"uuid"`
	Name            string                      `json:"name"`
	Primary         bool                        `json:"primary"`
	Characteristics []CharacteristicDescription `json:"characteristics"`
}

// Describe returns the topology without value buffers.
func (c *ServiceCatalog) Describe() []ServiceDescription {
	out := make([]ServiceDescription, 0, 2)
	for _, svc := range c.Services() {
		desc := ServiceDescription{
			UUID:    svc.UUID.String(),
			Name:    svc.Name,
			Primary: svc.Primary,
		}
		for _, def := range svc.Characteristics() {
			desc.Characteristics = append(desc.Characteristics, CharacteristicDescription{
				UUID:        def.UUID.String(),
				Name:        def.Name,
				Properties:  def.Properties.Names(),
				Permissions: def.Permissions.Names(),
				Description: def.Description,
			})
		}
		out = append(out, desc)
	}
	return out
}

// sigBaseSuffix is the tail shared by all Bluetooth SIG assigned 128-bit UUIDs.
const sigBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// ShortUUID returns the 16-bit form ("2a19") of a SIG-assigned UUID and the
// full string otherwise.
func ShortUUID(id uuid.UUID) string {
	s := id.String()
	if strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}
