package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/insightdelivered/statement-import/internal/llm"
)

// ErrRendererUnavailable is returned when pdftoppm is not installed.
var ErrRendererUnavailable = errors.New("pdftoppm not available (install poppler-utils)")

// RenderOptions controls page rasterization.
type RenderOptions struct {
	DPI      int
	MaxPages int
}

// IsRendererAvailable reports whether PDF pages can be rasterized.
func IsRendererAvailable() bool {
	_, err := exec.LookPath("pdftoppm")
	return err == nil
}

// RenderPages converts PDF pages to PNG images with pdftoppm.
func RenderPages(ctx context.Context, data []byte, opts RenderOptions) ([]llm.Image, error) {
	if !IsRendererAvailable() {
		return nil, ErrRendererUnavailable
	}
	if opts.DPI <= 0 {
		opts.DPI = 200
	}

	tmpDir, err := os.MkdirTemp("", "statement-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "statement.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	args := []string{"-r", strconv.Itoa(opts.DPI), "-png"}
	if opts.MaxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(opts.MaxPages))
	}
	args = append(args, pdfPath, filepath.Join(tmpDir, "page"))

	cmd := exec.CommandContext(ctx, "pdftoppm", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(out))
	}

	imageFiles, err := pageImages(tmpDir)
	if err != nil {
		return nil, err
	}
	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no page images")
	}

	images := make([]llm.Image, 0, len(imageFiles))
	for _, f := range imageFiles {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading page image: %w", err)
		}
		images = append(images, llm.Image{MediaType: "image/png", Data: b})
	}
	return images, nil
}

// pageImages lists page-N.png files sorted by page number.
func pageImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read temp dir: %w", err)
	}

	type page struct {
		n    int
		path string
	}
	var pages []page
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png"))
		if err != nil {
			continue
		}
		pages = append(pages, page{n: n, path: filepath.Join(dir, name)})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.path
	}
	return out, nil
}

// ImageMediaType maps a file extension to the media type the model accepts.
func ImageMediaType(ext string) (string, bool) {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png", true
	case ".jpg", ".jpeg":
		return "image/jpeg", true
	case ".webp":
		return "image/webp", true
	case ".gif":
		return "image/gif", true
	}
	return "", false
}
