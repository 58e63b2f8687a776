package effects

// DefaultPitchWindowMs is the sweep window of track pitch shifters.
const DefaultPitchWindowMs = 60

// TrackParams are the channel strip settings of one track.
type TrackParams struct {
	Volume       float64 // 0..1
	MasterVolume float64
	Pan          float64 // -1..1
	Low          float64 // dB
	Mid          float64 // dB
	High         float64 // dB
	PitchShift   float64 // semitones
}

// NewTrackChain builds gain (track volume times master) followed by pan, EQ
// and pitch shift. Stages left at their neutral setting are omitted.
func NewTrackChain(sampleRate int, p TrackParams) *Chain {
	c := NewChain(NewGain(float32(p.Volume * p.MasterVolume)))
	if p.Pan != 0 {
		c.Add(NewPan(float32(p.Pan)))
	}
	if p.Low != 0 || p.Mid != 0 || p.High != 0 {
		c.Add(NewEQ3Band(sampleRate, p.Low, p.Mid, p.High))
	}
	if p.PitchShift != 0 {
		c.Add(NewPitchShift(sampleRate, p.PitchShift, DefaultPitchWindowMs))
	}
	return c
}
