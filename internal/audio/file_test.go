package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestWAV(t *testing.T, pcm []byte, rate int, channels int) string {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	path := filepath.Join(t.TempDir(), "capture.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestFileProviderReplaysPCMInChunks(t *testing.T) {
	pcm := make([]byte, chunkSizeBytes*2+10)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}
	path := writeTestWAV(t, pcm, 8000, 2)

	device, err := FileProvider{Path: path}.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, "capture.wav", device.Name())
	require.Equal(t, "audio/L16; rate=8000; channels=2", device.MimeType())

	rec := &chunkRecorder{}
	done := make(chan struct{})
	total := 0
	require.NoError(t, device.Begin(func(chunk []byte) {
		rec.add(chunk)
		total += len(chunk)
		if total == len(pcm) {
			close(done)
		}
	}))
	<-done

	require.NoError(t, device.End(context.Background()))
	require.NoError(t, device.Release())
	require.Equal(t, []int{chunkSizeBytes, chunkSizeBytes, 10}, rec.lengths())

	var got []byte
	for _, chunk := range rec.chunks {
		got = append(got, chunk...)
	}
	require.Equal(t, pcm, got)
}

func TestFileProviderRawPCMUsesCaptureFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcm")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4}, 0o600))

	device, err := FileProvider{Path: path}.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, "audio/L16; rate=16000; channels=1", device.MimeType())
	require.NoError(t, device.Release())
}

func TestFileProviderMissingFileIsUnavailable(t *testing.T) {
	_, err := FileProvider{Path: filepath.Join(t.TempDir(), "missing.wav")}.Acquire(context.Background())
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileDeviceEndBeforeBeginAndBeginAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcm")
	require.NoError(t, os.WriteFile(path, []byte{1, 2}, 0o600))

	device, err := FileProvider{Path: path}.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, device.End(context.Background()))
	require.NoError(t, device.Release())
	require.ErrorIs(t, device.Begin(func([]byte) {}), ErrDeviceUnavailable)
}

func TestSplitWAVShortInputPassesThrough(t *testing.T) {
	pcm, rate, channels := splitWAV([]byte("RIFF"))
	require.Equal(t, []byte("RIFF"), pcm)
	require.Equal(t, captureSampleRate, rate)
	require.Equal(t, captureChannels, channels)
}

func TestClassifyOpenError(t *testing.T) {
	require.NoError(t, classifyOpenError(nil))

	denied := classifyOpenError(errors.New("connect: Access denied"))
	require.ErrorIs(t, denied, ErrPermissionDenied)
	require.NotErrorIs(t, denied, ErrDeviceUnavailable)

	missing := classifyOpenError(errors.New("dial unix /run/pulse/native: no such file"))
	require.ErrorIs(t, missing, ErrDeviceUnavailable)

	already := classifyOpenError(ErrPermissionDenied)
	require.Equal(t, ErrPermissionDenied, already)
}

func TestInfoDescribe(t *testing.T) {
	require.Equal(t, "Mic (mic-1)", Info{ID: "mic-1", Description: "Mic"}.Describe())
	require.Equal(t, "mic-1", Info{ID: "mic-1"}.Describe())
	require.Equal(t, "Mic", Info{Description: " Mic "}.Describe())
}
