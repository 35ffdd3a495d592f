package validation

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finki-hub/finki-chat-bot/internal/api/response"
	"github.com/finki-hub/finki-chat-bot/internal/models"
)

func validChatRequest() models.ChatRequest {
	req := models.ChatRequest{Prompt: "Кога е испитната сесија?"}
	req.ApplyDefaults()

	return req
}

func TestValidateChatRequest(t *testing.T) {
	t.Run("valid request passes", func(t *testing.T) {
		req := validChatRequest()
		require.NoError(t, ValidateStruct(&req))
	})

	t.Run("missing prompt rejected", func(t *testing.T) {
		req := validChatRequest()
		req.Prompt = ""

		err := ValidateStruct(&req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Prompt is required")
	})

	t.Run("temperature out of range rejected", func(t *testing.T) {
		req := validChatRequest()
		req.Temperature = 1.5
		require.Error(t, ValidateStruct(&req))
	})

	t.Run("top_p out of range rejected", func(t *testing.T) {
		req := validChatRequest()
		req.TopP = -0.1
		require.Error(t, ValidateStruct(&req))
	})

	t.Run("non-positive max_tokens rejected", func(t *testing.T) {
		req := validChatRequest()
		req.MaxTokens = 0
		require.Error(t, ValidateStruct(&req))
	})
}

func TestValidateQuestionRequests(t *testing.T) {
	t.Run("create requires name and content", func(t *testing.T) {
		err := ValidateStruct(&models.CreateQuestionRequest{Name: "испитна-сесија"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Content is required")
	})

	t.Run("null bytes rejected", func(t *testing.T) {
		err := ValidateStruct(&models.CreateQuestionRequest{
			Name:    "испитна\x00сесија",
			Content: "Сесијата почнува во јуни.",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NULL bytes")
	})

	t.Run("update with nil fields passes", func(t *testing.T) {
		require.NoError(t, ValidateStruct(&models.UpdateQuestionRequest{}))
	})
}

func TestValidateLinkRequests(t *testing.T) {
	t.Run("valid link passes", func(t *testing.T) {
		require.NoError(t, ValidateStruct(&models.CreateLinkRequest{
			Name: "консултации",
			URL:  "https://finki.ukim.mk/mk/consultations",
		}))
	})

	t.Run("malformed url rejected", func(t *testing.T) {
		err := ValidateStruct(&models.CreateLinkRequest{Name: "консултации", URL: "not a url"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "URL must be a valid URL")
	})
}

func TestRespondValidationError(t *testing.T) {
	req := validChatRequest()
	req.Prompt = ""
	req.TopP = 2

	err := ValidateStruct(&req)
	require.Error(t, err)

	rec := httptest.NewRecorder()
	RespondValidationError(rec, err)

	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem response.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))

	assert.Equal(t, "Validation Error", problem.Title)
	assert.Equal(t, 400, problem.Status)
	require.Len(t, problem.Errors, 2)
	assert.Equal(t, "Prompt", problem.Errors[0].Location)
	assert.Equal(t, "TopP", problem.Errors[1].Location)
}

func TestDecodeQueryParams(t *testing.T) {
	type params struct {
		Model models.Model `form:"model"`
		All   bool         `form:"all"`
	}

	t.Run("decodes model and all", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/questions/fill-embeddings?model=bge-m3:latest&all=true", nil)

		var p params
		require.NoError(t, ValidateAndDecodeQueryParams(r, &p))
		assert.Equal(t, models.ModelBGEM3, p.Model)
		assert.True(t, p.All)
	})

	t.Run("junk boolean rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/questions/fill-embeddings?all=sometimes", nil)

		var p params
		require.Error(t, ValidateAndDecodeQueryParams(r, &p))
	})
}
