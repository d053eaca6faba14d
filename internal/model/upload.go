package model

// UploadRequest is the body of POST /api/youtube/upload
type UploadRequest struct {
	ArtifactRef string   `json:"artifactRef"`
	VideoURL    string   `json:"videoUrl"`
	Title       string   `json:"title" validate:"omitempty,max=100"`
	Description string   `json:"description" validate:"omitempty,max=5000"`
	Tags        []string `json:"tags" validate:"omitempty,max=30,dive,max=100"`
}

// Ref returns the artifact reference, accepting the legacy field.
func (r *UploadRequest) Ref() string {
	if r.ArtifactRef != "" {
		return r.ArtifactRef
	}
	return r.VideoURL
}

// VideoMetadata describes the published video
type VideoMetadata struct {
	Title       string
	Description string
	Tags        []string
	Privacy     string
}

// UploadResult is the outcome of an upload attempt
type UploadResult struct {
	Success      bool       `json:"success"`
	RequireAuth  bool       `json:"requireAuth,omitempty"`
	VideoID      string     `json:"videoId,omitempty"`
	PublishedURL string     `json:"publishedUrl,omitempty"`
	Via          UploadPath `json:"via,omitempty"`
}
