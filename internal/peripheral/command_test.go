package peripheral

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    CommandCode
		wantErr error
	}{
		{name: "standby", payload: []byte{0}, want: CommandStandBy},
		{name: "on", payload: []byte{1}, want: CommandOn},
		{name: "only first byte counts", payload: []byte{1, 0xff}, want: CommandOn},
		{name: "empty", payload: nil, wantErr: ErrEmptyPayload},
		{name: "unknown", payload: []byte{2}, want: CommandCode(2), wantErr: ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandCode_String(t *testing.T) {
	assert.Equal(t, "standby", CommandStandBy.String())
	assert.Equal(t, "on", CommandOn.String())
	assert.Equal(t, "unknown(0x2a)", CommandCode(0x2a).String())
}
