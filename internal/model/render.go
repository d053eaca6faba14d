package model

import "time"

// RenderStartRequest is the body of POST /api/render-video
type RenderStartRequest struct {
	Script      string `json:"script" validate:"omitempty,max=8000"`
	Audience    string `json:"audience" validate:"omitempty,max=500"`
	StyleID     string `json:"styleId" validate:"omitempty,max=100"`
	CustomStyle string `json:"customStyle" validate:"omitempty,max=500"`
}

// RenderStartResponse is returned when a job is accepted
type RenderStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Provider  Provider  `json:"provider"`
	CreatedAt time.Time `json:"createdAt"`
}

// OverlayRequest is the body of POST /api/voice-overlay
type OverlayRequest struct {
	ArtifactName string `json:"artifactName"`
	VideoName    string `json:"videoName"`
}

// Name returns the artifact name, accepting the legacy field.
func (r *OverlayRequest) Name() string {
	if r.ArtifactName != "" {
		return r.ArtifactName
	}
	return r.VideoName
}

// OverlayResponse points at the narration audio and the derived video
type OverlayResponse struct {
	AudioURL string `json:"audioUrl"`
	URL      string `json:"url"`
	Artifact string `json:"artifact"`
}

// ProjectContext holds the saved inputs that render submissions fall back on.
type ProjectContext struct {
	Script      string `json:"script,omitempty"`
	StyleID     string `json:"styleId,omitempty"`
	CustomStyle string `json:"customStyle,omitempty"`
	Audience    string `json:"audience,omitempty"`
	CompanyURL  string `json:"companyUrl,omitempty"`
}

type SaveScriptRequest struct {
	Script string `json:"script" validate:"required,max=8000"`
}

type SaveStyleRequest struct {
	StyleID     string `json:"styleId" validate:"required,max=100"`
	CustomStyle string `json:"customStyle" validate:"omitempty,max=500"`
}

type SaveOnboardingRequest struct {
	TargetAudience string `json:"targetAudience" validate:"omitempty,max=500"`
	CompanyURL     string `json:"companyUrl" validate:"omitempty,url"`
}
