package extract

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// maxPDFPages bounds the page walk; a /Count beyond it is treated as a damaged page tree.
const maxPDFPages = 10000

// extractPDF returns one fragment per page, in page-tree order. Text inside a page comes out in
// content-stream order. A page without text (a scan, say) yields "" rather than an error, and a page
// whose content stream cannot be decoded is skipped the same way unless every page fails.
func extractPDF(content []byte) (fragments []string, err error) {
	if len(content) == 0 {
		return nil, corruptf("pdf", "empty file")
	}
	// ledongthuc/pdf reports many structural problems by panicking.
	defer func() {
		if r := recover(); r != nil {
			fragments = nil
			err = corruptf("pdf", "malformed structure: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, corrupt("pdf", err)
	}
	numPages := r.NumPage()
	if numPages <= 0 {
		return nil, corruptf("pdf", "document has no pages")
	}
	if numPages > maxPDFPages {
		return nil, corruptf("pdf", "page count %d exceeds %d", numPages, maxPDFPages)
	}

	fragments = make([]string, 0, numPages)
	unreadable := 0
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			unreadable++
			fragments = append(fragments, "")
			continue
		}
		text, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			unreadable++
			fragments = append(fragments, "")
			continue
		}
		fragments = append(fragments, text)
	}
	if unreadable == numPages {
		return nil, corruptf("pdf", "none of %d page(s) could be read", numPages)
	}
	return fragments, nil
}
