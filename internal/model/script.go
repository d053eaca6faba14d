package model

// GenerateScriptRequest is the body of POST /api/generate-script
type GenerateScriptRequest struct {
	Idea string `json:"idea" validate:"omitempty,max=2000"`
}

// GenerateScriptResponse carries the alternative drafts, best first as
// the model returned them.
type GenerateScriptResponse struct {
	Success bool           `json:"success"`
	Results []ScriptResult `json:"results"`
}

type ScriptResult struct {
	Script string       `json:"script"`
	Scores ScriptScores `json:"scores"`
}

// ScriptScores are heuristic ratings of one draft
type ScriptScores struct {
	Hook        HookScore   `json:"hook"`
	BrandSafety BrandSafety `json:"brand_safety"`
	Tone        Tone        `json:"tone"`
	Virality    Virality    `json:"virality"`
}

type HookScore struct {
	Score         float64 `json:"score"`
	FirstSentence string  `json:"first_sentence"`
	PowerHits     int     `json:"power_hits"`
}

type BrandSafety struct {
	Safe bool     `json:"safe"`
	Hits []string `json:"hits"`
}

type Tone struct {
	Label      string   `json:"label"`
	Candidates []string `json:"candidates"`
}

// Virality is a 0-100 blend of the other signals
type Virality struct {
	Score int `json:"score"`
}

// GenerateCaptionRequest is the body of POST /api/generate-caption. An
// empty script falls back on the saved one.
type GenerateCaptionRequest struct {
	Script string `json:"script" validate:"omitempty,max=8000"`
}

type GenerateCaptionResponse struct {
	Success  bool     `json:"success"`
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
}
