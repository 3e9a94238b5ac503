package sampler

// Frame is one sampled instant of a video. Image holds compressed JPEG
// bytes, written once during extraction and treated as opaque binary by
// everything downstream.
type Frame struct {
	Timestamp  float64 `json:"timestamp"`
	FrameIndex int     `json:"frame_number"`
	Image      []byte  `json:"-"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Config controls candidate generation and filtering for one extraction run.
type Config struct {
	// SampleRateFPS is the number of frames per second considered when no
	// MaxFrames cap is set.
	SampleRateFPS float64

	// MaxFrames, when > 0, switches extraction to equal-distribution
	// sampling across the video duration and caps the output length.
	MaxFrames int

	// MinTimeSeparation is the minimum number of seconds between any two
	// accepted frames.
	MinTimeSeparation float64

	// FilterText rejects title/instruction cards and implausible
	// (near-monochrome, over/under-exposed) frames.
	FilterText bool

	// FilterDuplicates rejects frames whose color histogram correlates
	// above DuplicateThreshold with any previously accepted frame.
	FilterDuplicates   bool
	DuplicateThreshold float64
}

const DefaultDuplicateThreshold = 0.85

func DefaultConfig() Config {
	return Config{
		SampleRateFPS:      1,
		MinTimeSeparation:  30.0,
		FilterText:         true,
		FilterDuplicates:   true,
		DuplicateThreshold: DefaultDuplicateThreshold,
	}
}
