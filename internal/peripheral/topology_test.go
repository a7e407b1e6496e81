//go:build test

package peripheral

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srg/geigersim/internal/testutils"
)

const expectedTopology = `[
  {
    "uuid": "190124d9-bb53-4acb-9c48-f4d5f8c81668",
    "name": "Geiger",
    "primary": true,
    "characteristics": [
      {
        "uuid": "00002a58-0000-1000-8000-00805f9b34fb",
        "name": "Radiation",
        "properties": ["notify"],
        "permissions": ["readable"]
      },
      {
        "uuid": "190124da-bb53-4acb-9c48-f4d5f8c81668",
        "name": "Command",
        "properties": ["write"],
        "permissions": ["writeable", "write-encrypted"]
      }
    ]
  },
  {
    "uuid": "0000180f-0000-1000-8000-00805f9b34fb",
    "name": "Battery",
    "primary": true,
    "characteristics": [
      {
        "uuid": "00002a19-0000-1000-8000-00805f9b34fb",
        "name": "Battery Level",
        "properties": ["read"],
        "permissions": ["readable"]
      }
    ]
  }
]`

func TestDescribe_Topology(t *testing.T) {
	testutils.NewJSONAsserter(t).AssertValue(NewServiceCatalog().Describe(), expectedTopology)
}

func TestPublishedTopologySurvivesRestart(t *testing.T) {
	// GOAL: every advertising cycle publishes the same topology, and the
	// event transcript of a full cycle is stable
	logger, _ := testutils.NewTestLogger()
	tr := &fakeTransport{}
	sink := &recordingSink{}
	p := New(tr, WithLogger(logger), WithSink(sink), WithClock(&manualClock{}))
	defer p.Close()

	ja := testutils.NewJSONAsserter(t)
	p.OnPowerStateChange(PoweredOn)
	st, err := p.Snapshot()
	require.NoError(t, err)
	ja.AssertValue(st.Services, expectedTopology)

	p.OnSubscribe(RadiationCharUUID, "A")
	p.OnPowerStateChange(PoweredOff)
	p.OnPowerStateChange(PoweredOn)

	st, err = p.Snapshot()
	require.NoError(t, err)
	ja.AssertValue(st.Services, expectedTopology)
	require.Empty(t, st.Subscribers)

	testutils.NewTextAsserter(t).AssertLines(sink.Messages(), `
Bluetooth powered on
Service started
Central A subscribed
Bluetooth powered off
Service stopped
Bluetooth powered on
Service started
`)
}
