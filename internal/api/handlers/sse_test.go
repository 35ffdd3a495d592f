package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter(t *testing.T) {
	t.Run("sets stream headers and 200", func(t *testing.T) {
		rec := httptest.NewRecorder()

		_, err := newSSEWriter(rec)
		require.NoError(t, err)

		assert.Equal(t, 200, rec.Code)
		assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	})

	t.Run("one frame per chunk", func(t *testing.T) {
		rec := httptest.NewRecorder()

		sse, err := newSSEWriter(rec)
		require.NoError(t, err)

		require.NoError(t, sse.WriteData("Здраво"))
		require.NoError(t, sse.WriteData(" свету"))

		assert.Equal(t, "data: Здраво\n\ndata:  свету\n\n", rec.Body.String())
	})

	t.Run("newlines escaped inside a frame", func(t *testing.T) {
		rec := httptest.NewRecorder()

		sse, err := newSSEWriter(rec)
		require.NoError(t, err)

		require.NoError(t, sse.WriteData("прв ред\nвтор ред"))

		assert.Equal(t, "data: прв ред\\nвтор ред\n\n", rec.Body.String())
	})
}
