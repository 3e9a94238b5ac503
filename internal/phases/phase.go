package phases

import (
	"fmt"

	"github.com/docuhelp/docuhelp-server/internal/sampler"
)

// Phase is one reconstructed segment of the procedure. KeyFrame points into
// the frame sequence the reconstructor was given; frames are referenced,
// never copied, and a frame backs at most one phase unless every frame is
// already in use.
type Phase struct {
	TimestampRange      string         `json:"timestamp_range"`
	StartSeconds        float64        `json:"start_seconds"`
	EndSeconds          float64        `json:"end_seconds"`
	KeyTimestamp        string         `json:"key_timestamp"`
	KeyTimestampSeconds float64        `json:"key_timestamp_seconds"`
	KeyFrame            *sampler.Frame `json:"-"`
	Description         string         `json:"description"`
}

// FullVideoRange is the timestamp range used by degraded output that spans
// the whole recording.
const FullVideoRange = "Full video"

// FormatTimestamp renders seconds as M:SS.
func FormatTimestamp(seconds float64) string {
	minutes := int(seconds) / 60
	secs := int(seconds) % 60
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
