/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dialogical/internal/domain"
)

// WriteProofFile writes a PDF or HTML proof to path, chosen by extension.
func WriteProofFile(path string, doc *domain.Document, opt PDFOptions) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" && ext != ".html" && ext != ".htm" {
		return fmt.Errorf("proof path %q must end in .pdf or .html", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create proof: %w", err)
	}
	bw := bufio.NewWriter(f)
	if ext == ".pdf" {
		err = WritePDFProof(bw, doc, opt)
	} else {
		err = WriteHTMLProof(bw, doc)
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close proof: %w", cerr)
	}
	return err
}
