package main

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/artifact"
	"github.com/veldtlabs/exportq/job"
)

// zipProcessor bundles the referenced files from srcDir into a zip
// archive under outDir. File references are paths relative to srcDir.
type zipProcessor struct {
	srcDir string
	outDir string
}

func newZipProcessor(srcDir, outDir string) *zipProcessor {
	return &zipProcessor{srcDir: srcDir, outDir: outDir}
}

// Process implements worker.Processor.
func (p *zipProcessor) Process(ctx context.Context, files []string, report func(job.Progress)) (artifact.Location, error) {
	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return artifact.Location{}, fmt.Errorf("create artifact dir: %w", err)
	}

	name := fmt.Sprintf("exports/%d.zip", time.Now().UTC().UnixNano())
	path := filepath.Join(p.outDir, filepath.Base(name))

	out, err := os.Create(path)
	if err != nil {
		return artifact.Location{}, fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for i, ref := range files {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return artifact.Location{}, err
		}
		if err := p.addFile(zw, ref); err != nil {
			_ = zw.Close()
			return artifact.Location{}, err
		}
		report(job.Progress{Percent: (i + 1) * 100 / len(files)})
	}
	if err := zw.Close(); err != nil {
		return artifact.Location{}, fmt.Errorf("finalize archive: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return artifact.Location{}, fmt.Errorf("stat archive: %w", err)
	}
	return artifact.Location{Key: name, Size: info.Size()}, nil
}

func (p *zipProcessor) addFile(zw *zip.Writer, ref string) error {
	// References must stay inside the source directory.
	if !filepath.IsLocal(ref) {
		return exportq.Permanentf("invalid file reference %q", ref)
	}

	src, err := os.Open(filepath.Join(p.srcDir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return exportq.Permanentf("file not found: %s", ref)
		}
		return fmt.Errorf("open %s: %w", ref, err)
	}
	defer src.Close()

	w, err := zw.Create(ref)
	if err != nil {
		return fmt.Errorf("archive entry %s: %w", ref, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("archive copy %s: %w", ref, err)
	}
	return nil
}
