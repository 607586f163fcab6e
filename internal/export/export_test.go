/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dialogical/internal/domain"

	"gopkg.in/yaml.v3"
)

func sampleDoc() *domain.Document {
	return &domain.Document{
		Source: "rodrick.dg",
		Segments: []domain.Segment{
			{
				ID:   "RodrickSign",
				Line: 1,
				Pages: []domain.Page{
					{
						Lines: []string{"NAME Rodrick Sign Co.\n", "PageOnly VOX sign\n", "\n", "So... you're reading a sign, eh?\n"},
						Line:  3,
						Meta: &domain.PageMeta{
							Speaker: &domain.Speaker{Kind: domain.SpeakerNamed, Name: "Rodrick Sign Co."},
							Vox:     &domain.Vox{Name: "sign", PageOnly: true},
						},
					},
					{Lines: []string{"Are you smart?\n", "\n"}, Line: 8},
				},
				Choices: []domain.Choice{
					{Label: "Nope", Target: &domain.Target{Kind: domain.TargetGoto, Name: "RodrickSign_Nope"}},
					{Label: "Definitely not"},
				},
			},
			{
				ID:    "RodrickSign_Nope",
				Line:  15,
				Pages: []domain.Page{{Lines: []string{"Yeah, I didn't think so.\n"}, Line: 17}},
				Exit:  &domain.Target{Kind: domain.TargetCall, Name: "Exit"},
			},
		},
	}
}

func TestEncodeJSONConformsToSchema(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleDoc(), FormatJSON); err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if err := ValidateJSON(buf.Bytes()); err != nil {
		t.Fatalf("encoded document should validate: %v", err)
	}
	var back domain.Document
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Segments[0].Pages[0].Meta.Vox.Name != "sign" {
		t.Fatalf("page metadata lost in encoding: %+v", back.Segments[0].Pages[0])
	}
	if back.Segments[1].Exit.Name != "Exit" {
		t.Fatalf("exit lost in encoding: %+v", back.Segments[1])
	}
}

func TestValidateJSONRejectsBrokenDocuments(t *testing.T) {
	cases := map[string]string{
		"empty pages": `{"segments":[{"id":"A","line":1,"pages":[]}]}`,
		"bad kind":    `{"segments":[{"id":"A","line":1,"pages":[{"lines":["x"],"line":1}],"exit":{"kind":"jump","name":"B"}}]}`,
		"extra field": `{"segments":[],"extra":true}`,
		"no segments": `{"source":"x"}`,
	}
	for name, data := range cases {
		err := ValidateJSON([]byte(data))
		var verr *ValidationError
		if !errors.As(err, &verr) || len(verr.Problems) == 0 {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if err := ValidateJSON([]byte(`{"segments":[]}`)); err != nil {
		t.Fatalf("empty document is valid: %v", err)
	}
}

func TestEncodeYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleDoc(), FormatYAML); err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	var back domain.Document
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("yaml unmarshal: %v", err)
	}
	if len(back.Segments) != 2 || back.Segments[0].Choices[0].Target.Name != "RodrickSign_Nope" {
		t.Fatalf("unexpected round trip: %+v", back)
	}
	if !strings.Contains(buf.String(), "kind: goto") {
		t.Fatalf("expected yaml keys from tags:\n%s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yml": FormatYAML, " yaml ": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("toml"); err == nil {
		t.Fatalf("expected error for toml")
	}
	if FormatForPath("out/x.YML", FormatJSON) != FormatYAML || FormatForPath("x.txt", FormatYAML) != FormatYAML {
		t.Fatalf("FormatForPath mismatch")
	}
	if ContentType(FormatYAML) != "application/yaml" || ContentType(FormatJSON) != "application/json" {
		t.Fatalf("ContentType mismatch")
	}
}

func TestWritePDFProof(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDFProof(&buf, sampleDoc(), PDFOptions{PageSize: "Letter"}); err != nil {
		t.Fatalf("WritePDFProof error: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestMarkdownAndHTMLProof(t *testing.T) {
	md := Markdown(sampleDoc())
	for _, want := range []string{
		"## `RodrickSign`",
		"Are you smart?",
		"**Page 1** (line 3) - Rodrick Sign Co. (vox sign)\n",
		"**Page 2** (line 8) - Rodrick Sign Co.\n",
		"| Nope | goto `RodrickSign_Nope` |",
		"Exit: call `Exit`",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}

	var buf bytes.Buffer
	doc := sampleDoc()
	doc.Source = "<odd>.dg"
	if err := WriteHTMLProof(&buf, doc); err != nil {
		t.Fatalf("WriteHTMLProof error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<title>&lt;odd&gt;.dg</title>") {
		t.Fatalf("title not escaped:\n%s", out)
	}
	if !strings.Contains(out, "<table>") || !strings.Contains(out, "<pre><code>") {
		t.Fatalf("expected table and code block in html:\n%s", out)
	}
}

func TestMarkdownFenceEscapes(t *testing.T) {
	doc := &domain.Document{Segments: []domain.Segment{{Line: 1, Pages: []domain.Page{{Lines: []string{"```\n"}, Line: 1}}}}}
	if !strings.Contains(Markdown(doc), "````\n```\n````") {
		t.Fatalf("fence should grow past embedded backticks:\n%s", Markdown(doc))
	}
}

func TestWriteProofFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"proof.pdf", "nested/proof.html"} {
		p := filepath.Join(dir, name)
		if err := WriteProofFile(p, sampleDoc(), PDFOptions{}); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if st, err := os.Stat(p); err != nil || st.Size() == 0 {
			t.Fatalf("%s: expected non-empty file (err=%v)", name, err)
		}
	}
	if err := WriteProofFile(filepath.Join(dir, "proof.txt"), sampleDoc(), PDFOptions{}); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}
