package ingest

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// admit validates mime, size, and (for PDFs) page count before any
// network call is made. A rejection here is always a client error, never
// a provider failure.
func (p *Pipeline) admit(in Input) error {
	if !allowedMimeTypes[in.MimeType] {
		return fmt.Errorf("%w: unsupported mime type %q", ErrRejected, in.MimeType)
	}
	if int64(len(in.Bytes)) > p.cfg.MaxUploadBytes {
		return fmt.Errorf("%w: file is %d bytes, exceeds limit of %d", ErrRejected, len(in.Bytes), p.cfg.MaxUploadBytes)
	}
	if in.MimeType == "application/pdf" {
		pages, err := pdfPageCount(in.Bytes)
		if err != nil {
			return fmt.Errorf("%w: could not inspect PDF structure: %v", ErrRejected, err)
		}
		if pages > p.cfg.VisionMaxPages {
			return fmt.Errorf("%w: document has %d pages, exceeds limit of %d", ErrRejected, pages, p.cfg.VisionMaxPages)
		}
	}
	return nil
}

func pdfPageCount(data []byte) (int, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

// ErrRejected marks an admission failure — a client-caused rejection, as
// opposed to a provider or storage failure during later stages.
var ErrRejected = fmt.Errorf("ingestion input rejected")
