package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/store"
)

const (
	contextScriptKey   = "context:script"
	contextStyleKey    = "context:style"
	contextCustomKey   = "context:custom_style"
	contextAudienceKey = "context:audience"
	contextWebsiteKey  = "context:website"
)

// ContextService keeps the project inputs a render falls back on when a
// request leaves them out.
type ContextService struct {
	kv store.KV
}

func NewContextService(kv store.KV) *ContextService {
	return &ContextService{kv: kv}
}

func (s *ContextService) SaveScript(ctx context.Context, script string) error {
	return s.put(ctx, contextScriptKey, script)
}

// SaveStyle replaces the style. An empty custom style clears the old one.
func (s *ContextService) SaveStyle(ctx context.Context, styleID, customStyle string) error {
	if err := s.put(ctx, contextStyleKey, styleID); err != nil {
		return err
	}
	if strings.TrimSpace(customStyle) == "" {
		if err := s.kv.Delete(ctx, contextCustomKey); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	}
	return s.put(ctx, contextCustomKey, customStyle)
}

// SaveOnboarding stores whichever onboarding answers are present.
func (s *ContextService) SaveOnboarding(ctx context.Context, req *model.SaveOnboardingRequest) error {
	if req.TargetAudience != "" {
		if err := s.put(ctx, contextAudienceKey, req.TargetAudience); err != nil {
			return err
		}
	}
	if req.CompanyURL != "" {
		if err := s.put(ctx, contextWebsiteKey, req.CompanyURL); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the saved context. Missing entries are empty.
func (s *ContextService) Load(ctx context.Context) (*model.ProjectContext, error) {
	pc := &model.ProjectContext{}
	fields := []struct {
		key string
		dst *string
	}{
		{contextScriptKey, &pc.Script},
		{contextStyleKey, &pc.StyleID},
		{contextCustomKey, &pc.CustomStyle},
		{contextAudienceKey, &pc.Audience},
		{contextWebsiteKey, &pc.CompanyURL},
	}
	for _, f := range fields {
		data, err := s.kv.Get(ctx, f.key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f.key, err)
		}
		*f.dst = strings.TrimSpace(string(data))
	}
	return pc, nil
}

func (s *ContextService) put(ctx context.Context, key, value string) error {
	if err := s.kv.Put(ctx, key, []byte(value), 0); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
