package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortsmith/api/internal/client"
	"github.com/shortsmith/api/internal/logger"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/store"
)

type fakeChat struct {
	reply   string
	err     error
	system  string
	user    string
	opts    client.CompletionOptions
	offline bool
}

func (f *fakeChat) ChatCompletion(_ context.Context, system, user string, opts client.CompletionOptions) (string, error) {
	f.system, f.user, f.opts = system, user, opts
	return f.reply, f.err
}

func (f *fakeChat) IsConfigured() bool { return !f.offline }

func newScriptService(t *testing.T, chat ChatCompleter) (*ScriptService, *ContextService) {
	t.Helper()
	ctxSvc := NewContextService(store.NewMemoryKV())
	return NewScriptService(chat, ctxSvc, logger.Nop()), ctxSvc
}

func TestScriptService_GenerateUsesSavedAudience(t *testing.T) {
	chat := &fakeChat{reply: `{"scripts":["Hook: one","Hook: two",{"markdown":"Hook: three"}]}`}
	svc, ctxSvc := newScriptService(t, chat)
	require.NoError(t, ctxSvc.SaveOnboarding(context.Background(), &model.SaveOnboardingRequest{TargetAudience: "indie devs"}))

	res, err := svc.Generate(context.Background(), &model.GenerateScriptRequest{Idea: "faster CI"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "Hook: three", res.Results[2].Script)

	assert.Contains(t, chat.user, `"idea":"faster CI"`)
	assert.Contains(t, chat.user, `"target_audience":"indie devs"`)
	assert.True(t, chat.opts.JSON)
	assert.Equal(t, 900, chat.opts.MaxTokens)
}

func TestScriptService_GenerateNotConfiguredReturnsSamples(t *testing.T) {
	svc, _ := newScriptService(t, &fakeChat{offline: true})

	res, err := svc.Generate(context.Background(), &model.GenerateScriptRequest{})
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	for _, r := range res.Results {
		assert.Contains(t, r.Script, "**Hook:**")
		assert.True(t, r.Scores.BrandSafety.Safe)
	}
}

func TestScriptService_GenerateProviderError(t *testing.T) {
	svc, _ := newScriptService(t, &fakeChat{err: &client.APIError{Service: "chat", StatusCode: 500}})

	_, err := svc.Generate(context.Background(), &model.GenerateScriptRequest{Idea: "x"})
	var apiErr *client.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestScriptService_GenerateEmptyAnswer(t *testing.T) {
	svc, _ := newScriptService(t, &fakeChat{reply: "  "})

	_, err := svc.Generate(context.Background(), &model.GenerateScriptRequest{Idea: "x"})
	assert.Error(t, err)
}

func TestScriptService_CaptionFallsBackOnSavedScript(t *testing.T) {
	chat := &fakeChat{reply: "Sure! {\"caption\":\"Ship it 🚀\",\"hashtags\":[\"#dev\",\"#ci\"]}"}
	svc, ctxSvc := newScriptService(t, chat)
	require.NoError(t, ctxSvc.SaveScript(context.Background(), "Hook: saved"))

	res, err := svc.Caption(context.Background(), &model.GenerateCaptionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Ship it 🚀", res.Caption)
	assert.Equal(t, []string{"#dev", "#ci"}, res.Hashtags)
	assert.Contains(t, chat.user, `"script":"Hook: saved"`)
	assert.Contains(t, chat.user, `"target_audience":"general audience"`)
}

func TestScriptService_CaptionUnparseableAnswer(t *testing.T) {
	svc, _ := newScriptService(t, &fakeChat{reply: "no json here"})

	res, err := svc.Caption(context.Background(), &model.GenerateCaptionRequest{Script: "Hook: hi"})
	require.NoError(t, err)
	assert.Equal(t, "Ready to share!", res.Caption)
	assert.Equal(t, []string{"#fyp", "#viral"}, res.Hashtags)
}

func TestParseScripts(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"strings", `{"scripts":["a","b"]}`, []string{"a", "b"}},
		{"objects", `{"scripts":[{"content":"a"},{"text":"b"},{"other":"c"}]}`, []string{"a", "b", `{"other":"c"}`}},
		{"horizontal rules", "one\n---\ntwo\n-----\nthree\n---\nfour", []string{"one", "two", "three"}},
		{"empty array", `{"scripts":[]}`, []string{`{"scripts":[]}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseScripts(tt.content))
		})
	}
}
