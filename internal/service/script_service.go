package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/client"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/narration"
)

const (
	defaultAudience = "general audience"
	scriptDrafts    = 3
)

// ChatCompleter answers a system and user prompt pair
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, system, user string, opts client.CompletionOptions) (string, error)
	IsConfigured() bool
}

// ScriptService drafts scripts and post captions with a chat model. The
// saved project context supplies the audience and the fallback script.
type ScriptService struct {
	chat    ChatCompleter
	project *ContextService
	logger  arbor.ILogger
}

func NewScriptService(chat ChatCompleter, contextSvc *ContextService, logger arbor.ILogger) *ScriptService {
	return &ScriptService{chat: chat, project: contextSvc, logger: logger}
}

var draftSeparator = regexp.MustCompile(`\n-{3,}\n`)

// Generate returns three scored script drafts for idea.
func (s *ScriptService) Generate(ctx context.Context, req *model.GenerateScriptRequest) (*model.GenerateScriptResponse, error) {
	saved, err := s.project.Load(ctx)
	if err != nil {
		return nil, err
	}

	var drafts []string
	if s.chat == nil || !s.chat.IsConfigured() {
		s.logger.Debug().Msg("Chat model not configured, returning sample scripts")
		drafts = mockScripts()
	} else {
		user, err := json.Marshal(map[string]interface{}{
			"instructions":    `Return JSON with {"scripts":["...","...","..."]}. No extra text.`,
			"idea":            req.Idea,
			"target_audience": orDefault(saved.Audience, defaultAudience),
			"format_requirements": []string{
				"Each script under 100 words",
				"Sections: Hook, Points (bulleted), CTA",
				"Vary tone/style across the three alternatives",
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build prompt: %w", err)
		}

		content, err := s.chat.ChatCompletion(ctx, scriptSystemPrompt, string(user), client.CompletionOptions{Temperature: 0.9, MaxTokens: 900, JSON: true})
		if err != nil {
			return nil, fmt.Errorf("script generation failed: %w", err)
		}
		drafts = parseScripts(content)
		if len(drafts) == 0 {
			return nil, fmt.Errorf("no scripts in model response")
		}
	}

	results := make([]model.ScriptResult, 0, len(drafts))
	for _, d := range drafts {
		results = append(results, model.ScriptResult{Script: d, Scores: narration.Score(d)})
	}
	s.logger.Info().Int("drafts", len(results)).Msg("Scripts generated")
	return &model.GenerateScriptResponse{Success: true, Results: results}, nil
}

// Caption writes a post caption and hashtags for the given or saved script.
func (s *ScriptService) Caption(ctx context.Context, req *model.GenerateCaptionRequest) (*model.GenerateCaptionResponse, error) {
	saved, err := s.project.Load(ctx)
	if err != nil {
		return nil, err
	}
	script := strings.TrimSpace(req.Script)
	if script == "" {
		script = saved.Script
	}

	if s.chat == nil || !s.chat.IsConfigured() {
		s.logger.Debug().Msg("Chat model not configured, returning sample caption")
		return &model.GenerateCaptionResponse{
			Success:  true,
			Caption:  "Watch this before your next launch 🚀",
			Hashtags: []string{"#shorts", "#fyp", "#viral", "#growth", "#startup", "#tips", "#🚀launch"},
		}, nil
	}

	user, err := json.Marshal(map[string]interface{}{
		"instructions": `Produce JSON {"caption":"...","hashtags":["#tag1","#tag2",...]} only.`,
		"constraints": []string{
			"Caption: 1-2 sentences, under 200 characters, engaging but brand-safe; include 1-3 relevant emojis",
			"Hashtags: 10-15 items, all lowercase, include # prefix, no spaces inside a tag; allow emojis; include 2-3 hashtags that incorporate emojis",
			"Blend broad reach tags with 3-5 niche tags relevant to topic",
		},
		"target_audience": orDefault(saved.Audience, defaultAudience),
		"script":          script,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	content, err := s.chat.ChatCompletion(ctx, captionSystemPrompt, string(user), client.CompletionOptions{Temperature: 0.7, MaxTokens: 400, JSON: true})
	if err != nil {
		return nil, fmt.Errorf("caption generation failed: %w", err)
	}
	caption, hashtags := parseCaption(content)
	return &model.GenerateCaptionResponse{Success: true, Caption: caption, Hashtags: hashtags}, nil
}

const scriptSystemPrompt = `You are an expert short-form video scriptwriter. Return STRICT JSON only.
Generate three distinct short scripts (60-120 seconds) optimized for TikTok/YouTube Shorts with a strong hook, tight pacing, and a clear CTA.
Each script must be markdown with clear sections: Hook, Points (bulleted), CTA.`

const captionSystemPrompt = `You are a social media copywriter for short-form video (TikTok, Reels, Shorts). Return STRICT JSON only.`

// parseScripts reads {"scripts":[...]}. Entries may be strings or objects
// carrying the text under a common key. Content that is not JSON is split
// on horizontal rules.
func parseScripts(content string) []string {
	var parsed struct {
		Scripts []json.RawMessage `json:"scripts"`
	}
	var scripts []string
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err == nil {
		for _, raw := range parsed.Scripts {
			if text := draftText(raw); text != "" {
				scripts = append(scripts, text)
			}
		}
	}
	if len(scripts) > 0 {
		return scripts
	}

	for _, part := range draftSeparator.Split(content, -1) {
		if part = strings.TrimSpace(part); part != "" {
			scripts = append(scripts, part)
		}
		if len(scripts) == scriptDrafts {
			break
		}
	}
	return scripts
}

func draftText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"markdown", "content", "script", "text"} {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
	}
	return string(raw)
}

// parseCaption falls back on a generic caption when the answer is not JSON.
func parseCaption(content string) (string, []string) {
	var parsed struct {
		Caption  string        `json:"caption"`
		Hashtags []interface{} `json:"hashtags"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return "Ready to share!", []string{"#fyp", "#viral"}
	}
	hashtags := make([]string, 0, len(parsed.Hashtags))
	for _, h := range parsed.Hashtags {
		hashtags = append(hashtags, fmt.Sprint(h))
	}
	return parsed.Caption, hashtags
}

// extractJSON trims any text around the outermost object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func mockScripts() []string {
	return []string{
		"**Hook:** Stop shipping features nobody asked for.\n\n**Points:**\n- Talk to five users this week\n- Ship the smallest fix\n- Measure one number\n\n**CTA:** Follow for more product tips.",
		"**Hook:** Did you know most launches fail in the first week?\n\n**Points:**\n- Pick one channel\n- Post daily\n- Reply to every comment\n\n**CTA:** Save this for your next launch.",
		"**Hook:** Here's why your demo video gets skipped.\n\n**Points:**\n- No hook in 2 seconds\n- Too much setup\n- No clear ask\n\n**CTA:** Subscribe and fix yours today.",
	}
}
