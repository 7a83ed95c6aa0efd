package audio

// VADConfig holds configuration for level-based speech detection
type VADConfig struct {
	LevelThreshold float64 // Level (0..1) above which a frame counts as speech
	SilenceFrames  int     // Consecutive quiet frames before speech is considered ended
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		LevelThreshold: 0.05,
		SilenceFrames:  2, // ~170ms of silence at 4096 samples/48kHz
	}
}

// SpeechDetector tracks speech/silence edges from per-frame audio levels.
type SpeechDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewSpeechDetector creates a new detector
func NewSpeechDetector(config *VADConfig) *SpeechDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.SilenceFrames < 1 {
		config.SilenceFrames = 1
	}
	return &SpeechDetector{
		config: config,
	}
}

// ProcessLevel feeds one frame's level.
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *SpeechDetector) ProcessLevel(level float64) (bool, bool, bool) {
	frameHasSpeech := level > v.config.LevelThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0

		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++

		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset resets the detector state
func (v *SpeechDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *SpeechDetector) IsSpeaking() bool {
	return v.isSpeaking
}
