package indicator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jfreymuth/pulse"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueCancel
)

func (k cueKind) String() string {
	switch k {
	case cueStart:
		return "start"
	case cueStop:
		return "stop"
	case cueComplete:
		return "complete"
	case cueCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

const (
	cueSampleRate = 16000
	cueVolume     = 0.18
	cueGap        = 22 * time.Millisecond
	cueTimeout    = 2 * time.Second
)

type tone struct {
	hz float64
	d  time.Duration
}

var cueTones = map[cueKind][]tone{
	cueStart:    {{880, 70 * time.Millisecond}, {1175, 70 * time.Millisecond}},
	cueStop:     {{620, 120 * time.Millisecond}},
	cueComplete: {{740, 65 * time.Millisecond}, {988, 90 * time.Millisecond}},
	cueCancel:   {{480, 75 * time.Millisecond}, {360, 90 * time.Millisecond}},
}

var cuePCM = func() map[cueKind][]int16 {
	out := make(map[cueKind][]int16, len(cueTones))
	for kind, tones := range cueTones {
		out[kind] = synthesizeCue(tones)
	}
	return out
}()

// emitCue plays a synthesized cue through the audio server and waits for it to drain.
// ctx only gates the start; cues are short enough to play out.
func emitCue(ctx context.Context, kind cueKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := cuePCM[kind]
	if len(samples) == 0 {
		return fmt.Errorf("no samples for %s cue", kind)
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("murmur"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("murmur "+kind.String()+" cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play %s cue: %w", kind, err)
	}
	return nil
}

// synthesizeCue concatenates tones separated by short silences.
func synthesizeCue(tones []tone) []int16 {
	gap := make([]int16, samplesFor(cueGap))
	var pcm []int16
	for i, t := range tones {
		if i > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, synthesizeTone(t, cueVolume)...)
	}
	return pcm
}

// synthesizeTone renders a sine with a linear attack/release ramp of at most 5ms.
func synthesizeTone(t tone, volume float64) []int16 {
	n := samplesFor(t.d)
	if n <= 0 || t.hz <= 0 || volume <= 0 {
		return nil
	}

	ramp := min(max(n/10, 1), cueSampleRate/200)
	pcm := make([]int16, n)
	for i := range pcm {
		envelope := min(1.0, float64(i)/float64(ramp), float64(n-i-1)/float64(ramp))
		phase := 2 * math.Pi * t.hz * float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * volume * envelope * math.MaxInt16))
	}
	return pcm
}

func samplesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
