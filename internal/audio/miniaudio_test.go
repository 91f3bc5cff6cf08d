package audio

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiniaudioDeviceEndKeepsFramesDeliveredWhileStopping(t *testing.T) {
	var (
		mu     sync.Mutex
		chunks [][]byte
		stops  int
	)
	dev := &miniaudioDevice{name: "test mic"}
	dev.stop = func() error {
		stops++
		// the backend flushes one last period before stopping
		dev.onData([]byte{7, 8})
		return nil
	}
	dev.onChunk = func(chunk []byte) {
		mu.Lock()
		defer mu.Unlock()
		chunks = append(chunks, chunk)
	}
	dev.began = true

	dev.onData([]byte{1, 2})
	require.NoError(t, dev.End(context.Background()))
	require.NoError(t, dev.End(context.Background()))

	dev.onData([]byte{9, 9})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, [][]byte{{1, 2}, {7, 8}}, chunks)
	require.Equal(t, 1, stops)
}

func TestMiniaudioDeviceEndBeforeBeginIsNoop(t *testing.T) {
	dev := &miniaudioDevice{name: "test mic", stop: func() error {
		t.Fatal("stop called before begin")
		return nil
	}}
	require.NoError(t, dev.End(context.Background()))
}
