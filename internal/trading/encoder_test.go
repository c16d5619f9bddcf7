package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestEncodeU16(t *testing.T) {
	tests := []struct {
		name    string
		in      *int
		want    uint16
		clamped bool
	}{
		{"nil defaults to zero", nil, 0, false},
		{"in range", intPtr(42), 42, false},
		{"upper boundary", intPtr(65535), 65535, false},
		{"above range clamps", intPtr(70000), 65535, true},
		{"negative clamps to zero", intPtr(-5), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := EncodeU16(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.clamped, clamped)
		})
	}
}

func TestEncodeU8(t *testing.T) {
	tests := []struct {
		name    string
		in      *int
		want    uint8
		clamped bool
	}{
		{"nil defaults to zero", nil, 0, false},
		{"in range", intPtr(3), 3, false},
		{"upper boundary", intPtr(255), 255, false},
		{"above range clamps", intPtr(300), 255, true},
		{"negative clamps to zero", intPtr(-1), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := EncodeU8(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.clamped, clamped)
		})
	}
}

func TestEncodePercentage(t *testing.T) {
	got, clamped := EncodePercentage(nil)
	assert.Equal(t, uint16(100), got, "absent percentage means full close")
	assert.False(t, clamped)

	got, clamped = EncodePercentage(intPtr(50))
	assert.Equal(t, uint16(50), got)
	assert.False(t, clamped)

	got, clamped = EncodePercentage(intPtr(-10))
	assert.Equal(t, uint16(0), got)
	assert.True(t, clamped)

	got, clamped = EncodePercentage(intPtr(100000))
	assert.Equal(t, uint16(65535), got)
	assert.True(t, clamped)
}
