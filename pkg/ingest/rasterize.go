package ingest

import (
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
)

const rasterizeLongEdge = 1024

// rasterizePDF converts PDF bytes into a set of bounded-resolution PNG pages,
// in a scoped temporary working directory that is always released before
// returning, on every exit path including error returns.
//
// pdftoppm (poppler-utils) does the PDF→PNG conversion; this package does
// not implement a PDF renderer itself.
func rasterizePDF(pdfBytes []byte) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "labtrace-rasterize-*")
	if err != nil {
		return nil, fmt.Errorf("create scoped temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(srcPath, pdfBytes, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	outPrefix := filepath.Join(dir, "page")
	cmd := exec.Command("pdftoppm", "-png", "-r", "150", srcPath, outPrefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, out)
	}

	matches, err := filepath.Glob(outPrefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("glob rasterized pages: %w", err)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}

	pages := make([][]byte, 0, len(matches))
	for _, path := range matches {
		resized, err := resizePage(path)
		if err != nil {
			return nil, err
		}
		pages = append(pages, resized)
	}
	return pages, nil
}

func resizePage(path string) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rasterized page %s: %w", filepath.Base(path), err)
	}

	bounds := img.Bounds()
	var resized image.Image
	if bounds.Dx() >= bounds.Dy() {
		resized = imaging.Resize(img, rasterizeLongEdge, 0, imaging.Lanczos)
	} else {
		resized = imaging.Resize(img, 0, rasterizeLongEdge, imaging.Lanczos)
	}

	outPath := path + ".resized.png"
	if err := imaging.Save(resized, outPath); err != nil {
		return nil, fmt.Errorf("save resized page: %w", err)
	}
	return os.ReadFile(outPath)
}
