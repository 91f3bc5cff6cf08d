//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListDevicesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	devices, err := ListDevices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
}

func TestPulseCaptureRoundTripIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	device, err := PulseProvider{Input: "default", Fallback: "default"}.Acquire(ctx)
	require.NoError(t, err)
	defer func() { require.NoError(t, device.Release()) }()

	received := make(chan int, 256)
	require.NoError(t, device.Begin(func(chunk []byte) {
		select {
		case received <- len(chunk):
		default:
		}
	}))

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, device.End(ctx))
	require.NotEmpty(t, received)
}
