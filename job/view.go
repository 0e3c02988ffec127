package job

import "time"

// View is the read-only projection of a job record served to polling
// clients. Fields are populated per status: progress only while
// processing, download URL and size only when completed, the error
// message only when failed. Internal detail (attempt counts, artifact
// keys, retry classification) never leaks through a View.
type View struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Progress          *int `json:"progress,omitempty"`
	EstimatedTimeLeft *int `json:"estimatedTimeLeft,omitempty"` // seconds

	DownloadURL string `json:"downloadUrl,omitempty"`
	Size        int64  `json:"size,omitempty"`

	ErrorMessage string `json:"errorMessage,omitempty"`
}

// NewView builds the client-facing projection of j. downloadURL is the
// time-limited retrieval URL derived for completed jobs; it is ignored
// for any other status.
func NewView(j *Job, downloadURL string) *View {
	v := &View{
		ID:        j.ID.String(),
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
	}

	switch j.Status {
	case StatusProcessing:
		p := j.Progress
		v.Progress = &p
		if j.ETA > 0 {
			secs := int(j.ETA / time.Second)
			v.EstimatedTimeLeft = &secs
		}
	case StatusCompleted:
		v.CompletedAt = j.CompletedAt
		v.DownloadURL = downloadURL
		v.Size = j.ArtifactSize
	case StatusFailed:
		v.CompletedAt = j.CompletedAt
		v.ErrorMessage = j.ErrorMessage
	case StatusQueued:
		// Queued exposes identity and creation time only.
	}

	return v
}
