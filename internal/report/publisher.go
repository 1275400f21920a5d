package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
)

const (
	csvName      = "trade_envy.csv"
	markdownName = "summary.md"
	partSize     = 8 << 20
)

// Artifacts lists where a report was written.
type Artifacts struct {
	Dir       string
	CSVPath   string
	MDPath    string
	RemoteDir string
}

// Publisher writes reports under a local directory and, when a blob writer
// is set, uploads them under reports/<network>/<run id>/.
type Publisher struct {
	outputDir string
	blob      domain.BlobWriter
	logger    *slog.Logger
}

// NewPublisher creates a Publisher. blob may be nil.
func NewPublisher(outputDir string, blob domain.BlobWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		outputDir: outputDir,
		blob:      blob,
		logger:    logger.With("component", "report"),
	}
}

// Publish renders rep and stores both artifacts.
func (p *Publisher) Publish(ctx context.Context, rep *Report) (Artifacts, error) {
	var csvBuf, mdBuf bytes.Buffer
	if err := WriteCSV(&csvBuf, rep); err != nil {
		return Artifacts{}, err
	}
	if err := WriteMarkdown(&mdBuf, rep); err != nil {
		return Artifacts{}, err
	}

	dir := filepath.Join(p.outputDir, rep.Network, rep.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("report: create %s: %w", dir, err)
	}
	art := Artifacts{
		Dir:     dir,
		CSVPath: filepath.Join(dir, csvName),
		MDPath:  filepath.Join(dir, markdownName),
	}
	if err := os.WriteFile(art.CSVPath, csvBuf.Bytes(), 0o644); err != nil {
		return art, fmt.Errorf("report: write csv: %w", err)
	}
	if err := os.WriteFile(art.MDPath, mdBuf.Bytes(), 0o644); err != nil {
		return art, fmt.Errorf("report: write markdown: %w", err)
	}

	if p.blob != nil {
		remote := path.Join("reports", rep.Network, rep.RunID)
		if err := p.blob.PutMultipart(ctx, path.Join(remote, csvName), bytes.NewReader(csvBuf.Bytes()), partSize); err != nil {
			return art, fmt.Errorf("report: upload csv: %w", err)
		}
		if err := p.blob.Put(ctx, path.Join(remote, markdownName), bytes.NewReader(mdBuf.Bytes()), "text/markdown"); err != nil {
			return art, fmt.Errorf("report: upload markdown: %w", err)
		}
		art.RemoteDir = remote
	}

	p.logger.Info("report published",
		"run_id", rep.RunID,
		"records", len(rep.Records),
		"dir", art.Dir,
		"remote", art.RemoteDir,
	)
	return art, nil
}
