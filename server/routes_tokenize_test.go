package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/subtok/api"
)

// emptyRequest invokes a handler with a zero-length body.
func emptyRequest(t *testing.T, fn func(*gin.Context)) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = &http.Request{
		Body: io.NopCloser(&bytes.Buffer{}),
	}

	fn(c)

	return w
}

func TestTokenizeHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setTestHome(t)

	var s Server
	createTestCheckpoint(t, &s, "test")

	t.Run("missing body", func(t *testing.T) {
		w := emptyRequest(t, s.TokenizeHandler)

		require.Equal(t, http.StatusBadRequest, w.Code)
		if diff := cmp.Diff(`{"error":"missing request body"}`, w.Body.String()); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown checkpoint", func(t *testing.T) {
		w := createRequest(t, s.TokenizeHandler, api.TokenizeRequest{
			Name:  "nope",
			Lines: []string{"ab"},
		})

		require.Equal(t, http.StatusNotFound, w.Code)
		if diff := cmp.Diff(`{"error":"checkpoint 'nope' not found"}`, w.Body.String()); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid checkpoint name", func(t *testing.T) {
		w := createRequest(t, s.TokenizeHandler, api.TokenizeRequest{
			Name:  "../escape",
			Lines: []string{"ab"},
		})

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("tokenize lines", func(t *testing.T) {
		w := createRequest(t, s.TokenizeHandler, api.TokenizeRequest{
			Name:   "test",
			Lines:  []string{"ab", "b a"},
			Window: 4,
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp api.TokenizeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		want := [][]int{
			{3, 7, 7, 7},
			{1, 4, 0, 4},
		}
		if diff := cmp.Diff(want, resp.Ids); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("window defaults from environment", func(t *testing.T) {
		w := createRequest(t, s.TokenizeHandler, api.TokenizeRequest{
			Name:  "test",
			Lines: []string{"ab"},
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp api.TokenizeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Len(t, resp.Ids, 1)
		assert.Len(t, resp.Ids[0], 32)
	})

	t.Run("segmented lines skip merging", func(t *testing.T) {
		w := createRequest(t, s.TokenizeHandler, api.TokenizeRequest{
			Name:      "test",
			Lines:     []string{"ab b"},
			Window:    3,
			Segmented: true,
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp api.TokenizeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		// symbols map directly, nothing appends the word marker
		want := [][]int{{2, 1, 7}}
		if diff := cmp.Diff(want, resp.Ids); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDetokenizeHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setTestHome(t)

	var s Server
	createTestCheckpoint(t, &s, "test")

	t.Run("missing ids", func(t *testing.T) {
		w := createRequest(t, s.DetokenizeHandler, api.DetokenizeRequest{Name: "test"})

		require.Equal(t, http.StatusBadRequest, w.Code)
		if diff := cmp.Diff(`{"error":"missing ids to detokenize"}`, w.Body.String()); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown checkpoint", func(t *testing.T) {
		w := createRequest(t, s.DetokenizeHandler, api.DetokenizeRequest{
			Name: "nope",
			Ids:  [][]int{{0}},
		})

		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("detokenize ids", func(t *testing.T) {
		w := createRequest(t, s.DetokenizeHandler, api.DetokenizeRequest{
			Name: "test",
			Ids:  [][]int{{3, 4, 6, 7}, {0, 99}},
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp api.DetokenizeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		want := [][]string{
			{"ab</w>", "</w>", "<unk>", "<pad>"},
			{"a", "<unk>"},
		}
		if diff := cmp.Diff(want, resp.Symbols); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSegmentHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setTestHome(t)

	var s Server
	createTestCheckpoint(t, &s, "test")

	t.Run("missing word", func(t *testing.T) {
		w := createRequest(t, s.SegmentHandler, api.SegmentRequest{Name: "test"})

		require.Equal(t, http.StatusBadRequest, w.Code)
		if diff := cmp.Diff(`{"error":"missing word to segment"}`, w.Body.String()); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("fully merged word", func(t *testing.T) {
		w := createRequest(t, s.SegmentHandler, api.SegmentRequest{
			Name: "test",
			Word: "ab",
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp api.SegmentResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		if diff := cmp.Diff([]string{"ab</w>"}, resp.Symbols); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unmergeable word", func(t *testing.T) {
		w := createRequest(t, s.SegmentHandler, api.SegmentRequest{
			Name: "test",
			Word: "ba",
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp api.SegmentResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		if diff := cmp.Diff([]string{"b", "a", "</w>"}, resp.Symbols); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}
