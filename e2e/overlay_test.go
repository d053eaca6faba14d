package e2e

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlay_HookAndCTA(t *testing.T) {
	ta := setupApp(t)
	job := renderJob(t, ta, `{"script":"Hook: Stop scrolling. CTA: Try it now."}`)
	id := job["id"].(string)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/voice-overlay", `{"artifactName":"generated_`+id+`.mp4"}`)
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	assert.Equal(t, "/api/audio/generated_"+id+".mp3", body["audioUrl"])
	assert.Equal(t, "/api/video/generated_"+id+"_voiced.mp4", body["url"])
	assert.Equal(t, []string{"Stop scrolling. Try it now."}, ta.synth.texts)

	audio := doAuthRequest(t, ta.app, http.MethodGet, body["audioUrl"].(string), "")
	assertStatus(t, audio, http.StatusOK)
}

func TestOverlay_LegacyFieldAndLatest(t *testing.T) {
	ta := setupApp(t)
	job := renderJob(t, ta, `{"script":"Hook: Big news. CTA: Follow"}`)
	id := job["id"].(string)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/voice-overlay", `{"videoName":"generated_`+id+`.mp4"}`)
	assertStatus(t, resp, http.StatusOK)

	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/voice-overlay", `{}`)
	assertStatus(t, resp, http.StatusOK)
	assert.Equal(t, "/api/video/generated_"+id+"_voiced.mp4", parseJSON(t, resp)["url"])
}

func TestOverlay_PointsOnlyScript(t *testing.T) {
	ta := setupApp(t)
	job := renderJob(t, ta, `{"script":"Points:\n- one\n- two"}`)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/voice-overlay", `{"artifactName":"generated_`+job["id"].(string)+`.mp4"}`)
	assertStatus(t, resp, http.StatusBadRequest)
	assert.Equal(t, "EMPTY_INPUT", errorCode(t, resp))
	assert.Empty(t, ta.synth.texts)
}

func TestOverlay_UnknownJob(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/voice-overlay", `{"artifactName":"generated_missing.mp4"}`)
	assertStatus(t, resp, http.StatusNotFound)
}

func TestOverlay_BadName(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/voice-overlay", `{"artifactName":"../etc/passwd"}`)
	assertStatus(t, resp, http.StatusBadRequest)
}
