package download

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog/log"
)

// WithPDF saves every item through Next and then renders a PDF copy next to
// it. A failed PDF render is logged and does not fail the download.
type WithPDF struct {
	Next Downloader
}

func (w WithPDF) Download(ctx context.Context, item Item) (string, error) {
	path, err := w.Next.Download(ctx, item)
	if err != nil {
		return "", err
	}
	pdfPath, err := savePDF(path, item.Data)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("pdf copy failed")
		return path, nil
	}
	log.Info().Str("path", pdfPath).Msg("saved pdf copy")
	return path, nil
}

// savePDF writes a PDF rendering of data beside path, with the same stem and
// permissions. An existing PDF of that name is left alone.
func savePDF(path string, data []byte) (string, error) {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".pdf"
	f, pdfPath, err := createUnique(filepath.Dir(path), name, perm)
	if err != nil {
		return "", err
	}
	if err := writeSimplePDF(string(data), f); err != nil {
		_ = f.Close()
		_ = os.Remove(pdfPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(pdfPath)
		return "", fmt.Errorf("close pdf: %w", err)
	}
	return pdfPath, nil
}

// writeSimplePDF renders text line by line. Lines starting with '#' become
// bold headings; everything else is wrapped as plain paragraphs.
func writeSimplePDF(text string, w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 10)
	pdf.AddPage()

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		s := strings.TrimRight(scanner.Text(), " \t")
		if strings.TrimSpace(s) == "" {
			pdf.Ln(4)
			continue
		}
		if strings.HasPrefix(s, "#") {
			heading := strings.TrimSpace(strings.TrimLeft(s, "#"))
			if heading == "" {
				continue
			}
			pdf.SetFont("Helvetica", "B", 12)
			pdf.CellFormat(0, 7, tr(heading), "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 10)
			continue
		}
		pdf.MultiCell(0, 5, tr(s), "", "L", false)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan text: %w", err)
	}
	return pdf.Output(w)
}
