package extract

import (
	"sync"
	"time"

	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

const (
	// speakingSampleWindow bounds how long visual speaking samples are
	// kept for correlation.
	speakingSampleWindow = 30 * time.Second

	maxSpeakingSamples = 256
)

type speakingSample struct {
	at       time.Time
	speaking bool
}

// Correlator aligns diarized transcript fragments with the visual
// stream's "is the subject speaking" samples to guess which upstream
// speaker tag belongs to the subject. The guess is advisory only; it
// never blocks extraction or finalization.
type Correlator struct {
	mu      sync.Mutex
	samples []speakingSample
	votes   map[int]int
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{votes: make(map[int]int)}
}

// ObserveSpeaking records one visual-stream sample.
func (c *Correlator) ObserveSpeaking(at time.Time, speaking bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, speakingSample{at: at, speaking: speaking})
	c.pruneLocked(at)
}

// caller must hold c.mu
func (c *Correlator) pruneLocked(now time.Time) {
	cutoff := now.Add(-speakingSampleWindow)
	i := 0
	for i < len(c.samples) && c.samples[i].at.Before(cutoff) {
		i++
	}
	c.samples = c.samples[i:]
	if len(c.samples) > maxSpeakingSamples {
		c.samples = c.samples[len(c.samples)-maxSpeakingSamples:]
	}
}

// ObserveFragment correlates a tagged fragment's time window against the
// recorded speaking samples: samples showing the subject speaking inside
// the window vote for the fragment's tag, silent samples vote against.
func (c *Correlator) ObserveFragment(frag models.TranscriptFragment) {
	if frag.SpeakerTag == 0 || frag.CapturedAt.IsZero() {
		return
	}

	span := time.Duration((frag.End - frag.Start) * float64(time.Second))
	if span <= 0 {
		span = 2 * time.Second
	}
	windowStart := frag.CapturedAt.Add(-span)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.samples {
		if s.at.Before(windowStart) || s.at.After(frag.CapturedAt) {
			continue
		}
		if s.speaking {
			c.votes[frag.SpeakerTag]++
		} else {
			c.votes[frag.SpeakerTag]--
		}
	}
}

// BestSpeaker returns the speaker tag with the most positive votes, or
// ok=false when no tag has positive evidence yet.
func (c *Correlator) BestSpeaker() (tag int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	best := 0
	for t, v := range c.votes {
		if v > best {
			best = v
			tag = t
		}
	}
	return tag, best > 0
}
