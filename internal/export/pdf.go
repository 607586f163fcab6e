/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"strings"

	"dialogical/internal/domain"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions controls the PDF proof layout.
// Text uses the built-in Helvetica, so characters outside cp1252 print as '?'.
type PDFOptions struct {
	PageSize string  // "A4" (default) or "Letter"
	FontSize float64 // body text size in points, default 11
	Title    string  // defaults to the document source
}

// WritePDFProof renders doc as a printable proof: one heading per segment,
// each dialogue page as a numbered block, the ending listed last.
func WritePDFProof(w io.Writer, doc *domain.Document, opt PDFOptions) error {
	size := opt.PageSize
	if size == "" {
		size = "A4"
	}
	fs := opt.FontSize
	if fs <= 0 {
		fs = 11
	}
	title := opt.Title
	if title == "" {
		title = doc.Source
	}
	if title == "" {
		title = "Dialogue proof"
	}

	pdf := gofpdf.New("P", "pt", size, "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("dialogical", false)
	pdf.SetMargins(48, 48, 48)
	pdf.SetAutoPageBreak(true, 48)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	lh := fs * 1.35

	pdf.SetFooterFunc(func() {
		pdf.SetY(-36)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s - page %d", tr(title), pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 24, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(96, 96, 96)
	pdf.CellFormat(0, 14, fmt.Sprintf("%d segments, %d pages", len(doc.Segments), doc.PageCount()), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	voices := domain.NewVoiceTracker()
	for _, seg := range doc.Segments {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 20, tr(segmentTitle(seg)), "", 1, "L", false, 0, "")

		for i, p := range seg.Pages {
			pdf.SetFont("Helvetica", "", 8)
			pdf.SetTextColor(128, 128, 128)
			pdf.CellFormat(0, 12, tr(fmt.Sprintf("page %d  (line %d)  %s", i+1, p.Line, voices.Next(p.Meta).Label())), "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", fs)
			pdf.SetTextColor(0, 0, 0)
			pdf.SetFillColor(245, 245, 245)
			pdf.MultiCell(0, lh, tr(strings.TrimRight(p.Text(), "\n")), "L", "L", true)
			pdf.Ln(6)
		}

		if ending := endingLines(seg); len(ending) > 0 {
			pdf.SetFont("Helvetica", "I", fs)
			for _, l := range ending {
				pdf.CellFormat(0, lh, tr(l), "", 1, "L", false, 0, "")
			}
		}
		pdf.Ln(10)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func segmentTitle(seg domain.Segment) string {
	if seg.ID == "" {
		return fmt.Sprintf("(implicit segment, line %d)", seg.Line)
	}
	return fmt.Sprintf("%s  (line %d)", seg.ID, seg.Line)
}

// endingLines renders a segment's choices or exit, one line each.
func endingLines(seg domain.Segment) []string {
	var out []string
	for _, c := range seg.Choices {
		if c.Target != nil {
			out = append(out, fmt.Sprintf("> %s  -> %s %s", c.Label, c.Target.Kind, c.Target.Name))
			continue
		}
		out = append(out, "> "+c.Label)
	}
	if seg.Exit != nil {
		out = append(out, fmt.Sprintf("-> %s %s", seg.Exit.Kind, seg.Exit.Name))
	}
	return out
}
