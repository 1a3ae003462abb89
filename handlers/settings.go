package handlers

import (
	"errors"
	"net/http"

	"fknsrs.biz/p/vidscribe/internal/ctxsettings"
	"fknsrs.biz/p/vidscribe/internal/httputil"
	"fknsrs.biz/p/vidscribe/internal/settings"
)

type settingsResponse struct {
	WhisperEngine   string `json:"whisper_engine"`
	WhisperModel    string `json:"whisper_model"`
	OpenAIAPIKeySet bool   `json:"openai_api_key_set"`
}

func makeSettingsResponse(s settings.Settings) settingsResponse {
	return settingsResponse{
		WhisperEngine:   s.WhisperEngine,
		WhisperModel:    s.WhisperModel,
		OpenAIAPIKeySet: s.OpenAIAPIKey != "",
	}
}

func Settings(rw http.ResponseWriter, r *http.Request) {
	s, err := ctxsettings.Get(r.Context())
	if err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, makeSettingsResponse(s))
}

func UpdateSettings(rw http.ResponseWriter, r *http.Request) {
	var input struct {
		WhisperEngine *string `json:"whisper_engine"`
		WhisperModel  *string `json:"whisper_model"`
		OpenAIAPIKey  *string `json:"openai_api_key"`
	}

	if !readJSON(rw, r, &input) {
		return
	}

	store := ctxsettings.GetStore(r.Context())
	if store == nil {
		panic(ctxsettings.ErrNoSettings)
	}

	s, err := store.Update(r.Context(), settings.Update{
		WhisperEngine: input.WhisperEngine,
		WhisperModel:  input.WhisperModel,
		OpenAIAPIKey:  input.OpenAIAPIKey,
	})
	if err != nil {
		if errors.Is(err, settings.ErrUnknownEngine) {
			httputil.BadRequest(rw, err.Error())
			return
		}

		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, makeSettingsResponse(s))
}
