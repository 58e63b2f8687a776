package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Audio
	LiveSampleRate   int // live output device rate
	RenderSampleRate int // offline export rate

	// Playback
	PollInterval    time.Duration // playhead poll period, 0 = host driven
	PlayheadEpsilon float64       // minimum playhead change (bars) to publish

	// New sessions
	TotalBars int
	BPM       float64

	// Samples
	SampleDir     string
	DecodeWorkers int

	// Generator
	CutProbability       float64
	TrackDropProbability float64

	LogLevel string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		LiveSampleRate:   envInt("ARRANGE_LIVE_SAMPLE_RATE", 48000),
		RenderSampleRate: envInt("ARRANGE_RENDER_SAMPLE_RATE", 96000),

		PollInterval:    time.Duration(envInt("ARRANGE_POLL_INTERVAL_MS", 16)) * time.Millisecond,
		PlayheadEpsilon: envFloat("ARRANGE_PLAYHEAD_EPSILON", 0.01),

		TotalBars: envInt("ARRANGE_TOTAL_BARS", 64),
		BPM:       envFloat("ARRANGE_BPM", 120),

		SampleDir:     envStr("ARRANGE_SAMPLE_DIR", "."),
		DecodeWorkers: envInt("ARRANGE_DECODE_WORKERS", 4),

		CutProbability:       envFloat("ARRANGE_CUT_PROBABILITY", 0.30),
		TrackDropProbability: envFloat("ARRANGE_TRACK_DROP_PROBABILITY", 0.40),

		LogLevel: envStr("ARRANGE_LOG_LEVEL", "info"),
	}
}

// Logger returns a logger at the configured level, falling back to info
// when the level does not parse.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
