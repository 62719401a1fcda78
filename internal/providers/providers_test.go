package providers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

func TestLocalUploaderUploadBytes(t *testing.T) {
	tmpDir := t.TempDir()
	uploader := NewLocalUploader(tmpDir)

	url, err := uploader.UploadBytes(context.Background(), "test/file.txt", "text/plain", []byte("test content"))
	if err != nil {
		t.Fatalf("UploadBytes failed: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Fatalf("unexpected url %q", url)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "test/file.txt"))
	if err != nil {
		t.Fatalf("Failed to read uploaded file: %v", err)
	}
	if string(content) != "test content" {
		t.Errorf("Expected content 'test content', got %s", string(content))
	}
}

func TestLocalUploaderStaysUnderRoot(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "root")
	uploader := NewLocalUploader(root)

	if _, err := uploader.UploadBytes(context.Background(), "../../escape.txt", "text/plain", []byte("x")); err != nil {
		t.Fatalf("UploadBytes failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err != nil {
		t.Fatalf("expected file under root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "escape.txt")); !os.IsNotExist(err) {
		t.Fatal("upload escaped its root directory")
	}
}

func TestRunExporter(t *testing.T) {
	tmpDir := t.TempDir()
	exp := NewRunExporter(NewLocalUploader(tmpDir))

	rec := domain.RunRecord{
		Identifier: "00aa",
		RiskType:   domain.RiskTrading,
		Outcome:    domain.OutcomeCompleted,
		Result:     map[string]any{"risk_score_raw": 20, "detailed_assessment": "# Report\nfine"},
	}
	urls, err := exp.Export(context.Background(), rec)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("urls = %v", urls)
	}

	b, err := os.ReadFile(filepath.Join(tmpDir, "trading", "00aa.json"))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var back domain.RunRecord
	if err := json.Unmarshal(b, &back); err != nil || back.Identifier != "00aa" {
		t.Fatalf("exported run = %+v, %v", back, err)
	}
	md, _ := os.ReadFile(filepath.Join(tmpDir, "trading", "00aa.md"))
	if string(md) != "# Report\nfine\n" {
		t.Fatalf("markdown = %q", md)
	}

	failed := domain.RunRecord{Identifier: "00bb", RiskType: domain.RiskHedgeFund, Outcome: domain.OutcomeFailed}
	if urls, err := exp.Export(context.Background(), failed); err != nil || len(urls) != 1 {
		t.Fatalf("failed run export = %v, %v", urls, err)
	}
	if _, err := exp.Export(context.Background(), domain.RunRecord{}); err == nil {
		t.Fatal("expected error for run without identifier")
	}
}

func TestRedisHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisProvider(mr.Addr(), "")
	defer client.Close()

	if err := (RedisHealth{Client: client}).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mr.Close()
	if err := (RedisHealth{Client: client}).Ping(context.Background()); err == nil {
		t.Fatal("expected ping error after redis stopped")
	}
}
