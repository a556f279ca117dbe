package webui

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"departureboard.app/internal/app"
	"departureboard.app/internal/appconf"
)

func TestOverlayHandler(t *testing.T) {
	tempDir := t.TempDir()
	outputDir := filepath.Join(tempDir, "www")
	require.NoError(t, os.MkdirAll(outputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "5_0.json"), []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "secret.json"), []byte("SECRET"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "notes.txt"), []byte("text"), 0o644))

	ui := &WebUI{Application: &app.Application{Config: appconf.Config{OutputDir: outputDir}}}

	tests := []struct {
		name       string
		file       string
		wantStatus int
	}{
		{"overlay file", "5_0.json", http.StatusOK},
		{"missing overlay", "7_1.json", http.StatusNotFound},
		{"non json file", "notes.txt", http.StatusNotFound},
		{"path traversal", "../secret.json", http.StatusBadRequest},
		{"separator", "sub/5_0.json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/overlays/x", nil)
			req.SetPathValue("file", tt.file)
			rr := httptest.NewRecorder()

			ui.overlayHandler(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.NotContains(t, rr.Body.String(), "SECRET")
		})
	}

	rr := serve(ui, "/overlays/5_0.json")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/geo+json", rr.Header().Get("Content-Type"))
}

func TestOverlayHandlerWithoutOutputDir(t *testing.T) {
	ui := &WebUI{Application: &app.Application{}}
	req := httptest.NewRequest(http.MethodGet, "/overlays/5_0.json", nil)
	req.SetPathValue("file", "5_0.json")
	rr := httptest.NewRecorder()

	ui.overlayHandler(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
