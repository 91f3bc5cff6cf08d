package blob

import (
	"encoding/binary"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

// WAVMimeType is the media type produced by WrapWAV.
const WAVMimeType = "audio/wav"

// PCMFormat describes raw little-endian 16-bit PCM carried by an audio/L16 blob.
type PCMFormat struct {
	SampleRate int
	Channels   int
}

// ParsePCMFormat reads rate/channels parameters from an audio/L16 media type.
func ParsePCMFormat(mimeType string) (PCMFormat, bool) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil || mediaType != "audio/l16" {
		return PCMFormat{}, false
	}

	format := PCMFormat{SampleRate: 16000, Channels: 1}
	if raw := strings.TrimSpace(params["rate"]); raw != "" {
		if rate, err := strconv.Atoi(raw); err == nil && rate > 0 {
			format.SampleRate = rate
		}
	}
	if raw := strings.TrimSpace(params["channels"]); raw != "" {
		if channels, err := strconv.Atoi(raw); err == nil && channels > 0 {
			format.Channels = channels
		}
	}
	return format, true
}

// PCMMimeType formats an audio/L16 media type for the given stream format.
func PCMMimeType(sampleRate int, channels int) string {
	return fmt.Sprintf("audio/L16; rate=%d; channels=%d", sampleRate, channels)
}

// WrapWAV prefixes an audio/L16 blob with a RIFF/WAVE header. Blobs in any other
// container are returned unchanged.
func WrapWAV(b *Blob) *Blob {
	format, ok := ParsePCMFormat(b.MimeType())
	if !ok {
		return b
	}

	pcm := b.Bytes()
	out := make([]byte, 0, 44+len(pcm))
	out = append(out, wavHeader(len(pcm), format.SampleRate, format.Channels)...)
	out = append(out, pcm...)
	return &Blob{data: out, mimeType: WAVMimeType}
}

// wavHeader builds the canonical 44-byte header for 16-bit PCM.
func wavHeader(dataLen int, sampleRate int, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))
	return header
}
