package goble

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	ble "github.com/go-ble/ble"
	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/geigersim/internal/peripheral"
)

type fakeDevice struct {
	mu         sync.Mutex
	services   []*ble.Service
	advertised []ble.UUID
	advName    string
	advErr     error
	stopped    bool
}

func (d *fakeDevice) AddService(svc *ble.Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services = append(d.services, svc)
	return nil
}

func (d *fakeDevice) RemoveAllServices() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services = nil
	return nil
}

func (d *fakeDevice) AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error {
	d.mu.Lock()
	d.advName = name
	d.advertised = uuids
	err := d.advErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

func (d *fakeDevice) characteristic(id ble.UUID) *ble.Characteristic {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, svc := range d.services {
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(id) {
				return c
			}
		}
	}
	return nil
}

func (d *fakeDevice) serviceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.services)
}

type fakeAddr string

func (a fakeAddr) String() string { return string(a) }

type fakeConn struct {
	ble.Conn
	addr fakeAddr
}

func (c fakeConn) RemoteAddr() ble.Addr { return c.addr }

type fakeRequest struct {
	ble.Request
	conn ble.Conn
	data []byte
}

func (r fakeRequest) Conn() ble.Conn { return r.conn }
func (r fakeRequest) Data() []byte   { return r.data }
func (r fakeRequest) Offset() int    { return 0 }

func newRequest(addr string, data []byte) fakeRequest {
	return fakeRequest{conn: fakeConn{addr: fakeAddr(addr)}, data: data}
}

type fakeResponse struct {
	ble.ResponseWriter
	status ble.ATTError
	buf    []byte
}

func (r *fakeResponse) Write(b []byte) (int, error) {
	r.buf = append(r.buf, b...)
	return len(b), nil
}
func (r *fakeResponse) Status() ble.ATTError     { return r.status }
func (r *fakeResponse) SetStatus(s ble.ATTError) { r.status = s }

type fakeNotifier struct {
	ble.Notifier
	ctx    context.Context
	writes chan []byte
}

func (n *fakeNotifier) Context() context.Context { return n.ctx }
func (n *fakeNotifier) Write(b []byte) (int, error) {
	select {
	case n.writes <- append([]byte(nil), b...):
	default:
	}
	return len(b), nil
}
func (n *fakeNotifier) Close() error { return nil }

type sinkRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *sinkRecorder) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *sinkRecorder) contains(message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m == message {
			return true
		}
	}
	return false
}

type ServerTestSuite struct {
	suite.Suite

	device     *fakeDevice
	server     *Server
	peripheral *peripheral.Peripheral
	sink       *sinkRecorder
	hook       *logtest.Hook

	origFactory func() (Device, error)
	origSettle  time.Duration
}

func (s *ServerTestSuite) SetupTest() {
	s.origFactory = DeviceFactory
	s.origSettle = advertiseSettle
	advertiseSettle = 10 * time.Millisecond

	s.device = &fakeDevice{}
	DeviceFactory = func() (Device, error) { return s.device, nil }

	logger, hook := logtest.NewNullLogger()
	s.hook = hook
	s.sink = &sinkRecorder{}
	s.server = NewServer(logger, 500*time.Millisecond)
	s.peripheral = peripheral.New(s.server,
		peripheral.WithLogger(logger),
		peripheral.WithSink(s.sink),
		peripheral.WithInterval(20*time.Millisecond),
	)
}

func (s *ServerTestSuite) TearDownTest() {
	_ = s.peripheral.Close()
	_ = s.server.Close()
	DeviceFactory = s.origFactory
	advertiseSettle = s.origSettle
}

func (s *ServerTestSuite) open() {
	s.Require().NoError(s.server.Open(context.Background()))
	s.Require().Eventually(func() bool {
		return s.sink.contains("Advertising started")
	}, time.Second, 5*time.Millisecond)
}

func (s *ServerTestSuite) TestOpenPublishesAndAdvertises() {
	// GOAL: Verify a successful open powers on the peripheral, which publishes both services and advertises
	//
	// TEST SCENARIO: Open server → PoweredOn reported → services added → advertiser reports started

	s.open()

	st, err := s.peripheral.Snapshot()
	s.Require().NoError(err)
	s.Equal(peripheral.PoweredOn, st.Power)
	s.True(st.Advertising)
	s.Equal(2, s.device.serviceCount())

	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	s.Equal(peripheral.DefaultDeviceName, s.device.advName)
	s.Require().Len(s.device.advertised, 2)
	s.True(s.device.advertised[1].Equal(ble.UUID16(0x180f)), "battery service advertised in 16-bit form")
}

func (s *ServerTestSuite) TestOpenFailureMapsPowerState() {
	// GOAL: Verify device creation errors are normalized and reported as a power state
	//
	// TEST SCENARIO: Factory fails with a darwin power error → Open returns ErrBluetoothOff → peripheral sees PoweredOff

	DeviceFactory = func() (Device, error) {
		return nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	}

	err := s.server.Open(context.Background())
	s.Require().Error(err)
	s.ErrorIs(err, ErrBluetoothOff)

	st, err := s.peripheral.Snapshot()
	s.Require().NoError(err)
	s.Equal(peripheral.PoweredOff, st.Power)
	s.False(st.Published)
	s.True(s.sink.contains("Bluetooth powered off"))
}

func (s *ServerTestSuite) TestUserDescriptionDescriptors() {
	// GOAL: Verify every characteristic carries a user description descriptor

	s.open()

	for _, id := range []ble.UUID{ble.UUID16(0x2a19), toBLEUUID(peripheral.RadiationCharUUID), toBLEUUID(peripheral.CommandCharUUID)} {
		c := s.device.characteristic(id)
		s.Require().NotNil(c, "characteristic %s", id)
		s.Require().NotEmpty(c.Descriptors)
		s.True(c.Descriptors[0].UUID.Equal(userDescriptionUUID))
	}
}

func (s *ServerTestSuite) TestBatteryRead() {
	// GOAL: Verify a read on the battery level is answered with one byte in range
	//
	// TEST SCENARIO: ServeRead on 0x2a19 → core fills value → ATT success with 1 byte

	s.open()
	c := s.device.characteristic(ble.UUID16(0x2a19))
	s.Require().NotNil(c)
	s.Require().NotNil(c.ReadHandler)

	rsp := &fakeResponse{}
	c.ReadHandler.ServeRead(newRequest("aa:bb", nil), rsp)

	s.Equal(ble.ErrSuccess, rsp.status)
	s.Require().Len(rsp.buf, 1)
	s.Less(int(rsp.buf[0]), 100)
	s.Eventually(func() bool {
		s.sink.mu.Lock()
		defer s.sink.mu.Unlock()
		for _, m := range s.sink.messages {
			if strings.HasPrefix(m, "New battery level=") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func (s *ServerTestSuite) TestCommandWrites() {
	// GOAL: Verify command write statuses are mapped to ATT errors
	//
	// TEST SCENARIO: Write standby → success; write 0x07 → request not supported

	s.open()
	c := s.device.characteristic(toBLEUUID(peripheral.CommandCharUUID))
	s.Require().NotNil(c)
	s.Require().NotNil(c.WriteHandler)

	rsp := &fakeResponse{}
	c.WriteHandler.ServeWrite(newRequest("aa:bb", []byte{0x00}), rsp)
	s.Equal(ble.ErrSuccess, rsp.status)
	s.True(s.sink.contains("Received command to standby"))

	rsp = &fakeResponse{}
	c.WriteHandler.ServeWrite(newRequest("aa:bb", []byte{0x07}), rsp)
	s.Equal(ble.ErrReqNotSupp, rsp.status)
}

func (s *ServerTestSuite) TestSubscribeStreamsReadings() {
	// GOAL: Verify a notify subscription starts telemetry and its end stops it
	//
	// TEST SCENARIO: ServeNotify → readings written to notifier → cancel notifier context → no subscribers, telemetry off

	s.open()
	c := s.device.characteristic(toBLEUUID(peripheral.RadiationCharUUID))
	s.Require().NotNil(c)
	s.Require().NotNil(c.NotifyHandler)

	ctx, cancel := context.WithCancel(context.Background())
	n := &fakeNotifier{ctx: ctx, writes: make(chan []byte, 16)}
	served := make(chan struct{})
	go func() {
		defer close(served)
		c.NotifyHandler.ServeNotify(newRequest("cc:dd", nil), n)
	}()

	select {
	case payload := <-n.writes:
		s.Len(payload, peripheral.ReadingSize)
	case <-time.After(time.Second):
		s.FailNow("no notification received")
	}
	s.True(s.sink.contains("Central cc:dd subscribed"))

	cancel()
	<-served

	st, err := s.peripheral.Snapshot()
	s.Require().NoError(err)
	s.Empty(st.Subscribers)
	s.False(st.TelemetryActive)
	s.True(s.sink.contains("Central cc:dd cancelled subscription"))
}

func (s *ServerTestSuite) TestAdvertisingFailureReported() {
	// GOAL: Verify an advertiser error reaches the sink and clears advertising

	s.device.advErr = errors.New("bluetooth is turned off")
	s.Require().NoError(s.server.Open(context.Background()))

	s.Require().Eventually(func() bool {
		return s.sink.contains("Error advertising: bluetooth is turned off: bluetooth is turned off")
	}, time.Second, 5*time.Millisecond)

	st, err := s.peripheral.Snapshot()
	s.Require().NoError(err)
	s.False(st.Advertising)
}

func (s *ServerTestSuite) TestStopReleasesServices() {
	s.open()
	s.Require().NoError(s.peripheral.Stop())

	s.Equal(0, s.device.serviceCount())
	s.Require().NoError(s.server.Close())
	s.True(s.device.stopped)
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"darwin invalid state", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), ErrBluetoothOff},
		{"turned off", errors.New("Bluetooth is turned off"), ErrBluetoothOff},
		{"linux permission", errors.New("can't set socket option: operation not permitted"), ErrUnauthorized},
		{"no adapter", errors.New("can't init hci: no such device"), ErrNoAdapter},
		{"already wrapped", ErrUnsupportedPlatform, ErrUnsupportedPlatform},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, NormalizeError(tt.err), tt.want)
		})
	}

	assert.NoError(t, NormalizeError(nil))
	other := errors.New("something else")
	assert.Same(t, other, NormalizeError(other))
}

func TestPowerStateFor(t *testing.T) {
	assert.Equal(t, peripheral.PoweredOn, PowerStateFor(nil))
	assert.Equal(t, peripheral.PoweredOff, PowerStateFor(NormalizeError(errors.New("bluetooth is turned off"))))
	assert.Equal(t, peripheral.PowerUnauthorized, PowerStateFor(ErrUnauthorized))
	assert.Equal(t, peripheral.PowerUnsupported, PowerStateFor(ErrUnsupportedPlatform))
	assert.Equal(t, peripheral.PowerUnknown, PowerStateFor(errors.New("boom")))
}

func TestToBLEUUID(t *testing.T) {
	assert.True(t, toBLEUUID(peripheral.BatteryLevelCharUUID).Equal(ble.UUID16(0x2a19)))
	assert.True(t, toBLEUUID(peripheral.GeigerServiceUUID).Equal(ble.MustParse(peripheral.GeigerServiceUUID.String())))
	assert.Len(t, toBLEUUID(peripheral.CommandCharUUID), 16)
	assert.Len(t, toBLEUUID(uuid.MustParse("00002a58-0000-1000-8000-00805f9b34fb")), 2)
}

func TestUnsupportedLatencyAndClosedServer(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	srv := NewServer(logger, 0)

	require.ErrorIs(t, srv.SetDesiredConnectionLatency(peripheral.LatencyLow, "x"), peripheral.ErrUnsupported)
	require.ErrorIs(t, srv.StartAdvertising("x", nil), ErrNotOpen)
	require.ErrorIs(t, srv.AddService(peripheral.NewServiceCatalog().Battery), ErrNotOpen)
	require.NoError(t, srv.Close())
}
