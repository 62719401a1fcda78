package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

// Uploader stores a blob and returns a URL for it.
type Uploader interface {
	UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error)
}

type localUploader struct {
	rootDir string
}

func NewLocalUploader(rootDir string) Uploader {
	return &localUploader{rootDir: rootDir}
}

func (u *localUploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + objectPath)
	dst := filepath.Join(u.rootDir, clean)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		return "", err
	}
	abs, _ := filepath.Abs(dst)
	return "file://" + abs, nil
}

// RunExporter writes an archived run as <riskType>/<identifier>.json plus,
// when the result carries one, the detailed_assessment markdown next to it.
type RunExporter struct {
	up Uploader
}

func NewRunExporter(up Uploader) *RunExporter {
	return &RunExporter{up: up}
}

// Export returns the URLs written, JSON first.
func (e *RunExporter) Export(ctx context.Context, rec domain.RunRecord) ([]string, error) {
	if strings.TrimSpace(rec.Identifier) == "" {
		return nil, fmt.Errorf("run without identifier")
	}
	base := filepath.Join(string(rec.RiskType), rec.Identifier)
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}
	jsonURL, err := e.up.UploadBytes(ctx, base+".json", "application/json", b)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", rec.Identifier, err)
	}
	urls := []string{jsonURL}

	md, _ := rec.Result["detailed_assessment"].(string)
	if strings.TrimSpace(md) == "" {
		return urls, nil
	}
	mdURL, err := e.up.UploadBytes(ctx, base+".md", "text/markdown", []byte(strings.TrimSpace(md)+"\n"))
	if err != nil {
		return urls, fmt.Errorf("export %s assessment: %w", rec.Identifier, err)
	}
	return append(urls, mdURL), nil
}
