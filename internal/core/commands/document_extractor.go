// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// document extraction command run ahead of triage for uploaded documents.
//
// The payload type is detected from its magic bytes, not from the file name:
//   - pdf: text of every page, read with ledongthuc/pdf.
//   - docx: the text runs of word/document.xml, one paragraph per line.
//   - anything else that is valid UTF-8 is taken as plain text.
//
// Legacy binary .doc files and unknown binaries fail with ErrDocumentParseFailed.
package commands

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"github.com/ledongthuc/pdf"

	"github.com/verbavid/verbavid-api/internal/core/cor"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// DocumentUpload is an uploaded document awaiting extraction.
type DocumentUpload struct {
	FileName string
	Data     []byte
}

// ExtractText returns the plain text of doc.
func ExtractText(doc *DocumentUpload) (string, error) {
	if doc == nil || len(doc.Data) == 0 {
		return "", fmt.Errorf("%w: empty upload", model.ErrDocumentParseFailed)
	}

	kind, _ := filetype.Match(doc.Data)
	var (
		text string
		err  error
	)
	switch {
	case kind.Extension == "pdf":
		text, err = extractPDF(doc.Data)
	case kind.Extension == "docx",
		kind.Extension == "zip" && strings.EqualFold(filepath.Ext(doc.FileName), ".docx"):
		text, err = extractDOCX(doc.Data)
	case kind.Extension == "doc":
		err = errors.New("legacy .doc files are not supported, save the document as .docx or .pdf")
	case kind == filetype.Unknown && utf8.Valid(doc.Data):
		text = string(doc.Data)
	default:
		err = fmt.Errorf("unsupported document type %q", kind.MIME.Value)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrDocumentParseFailed, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text found in %s", model.ErrDocumentParseFailed, doc.FileName)
	}
	return text, nil
}

func extractPDF(data []byte) (text string, err error) {
	// The reader panics on some malformed cross reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func extractDOCX(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	part, err := archive.Open("word/document.xml")
	if err != nil {
		return "", fmt.Errorf("not a word document: %w", err)
	}
	defer part.Close()

	var (
		sb     strings.Builder
		inText bool
	)
	decoder := xml.NewDecoder(part)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

// DocumentExtractor is a command reading a *DocumentUpload from the input
// parameter and writing its text to the output parameter. The request is
// updated to carry the extracted text.
type DocumentExtractor struct {
	cor.BaseCommand
}

func NewDocumentExtractor(name string) *DocumentExtractor {
	return &DocumentExtractor{BaseCommand: *cor.NewStageCommand(name, string(model.StateExtraction))}
}

func (d *DocumentExtractor) Execute(context cor.Context) {
	doc := context.Get(d.GetInputParam()).(*DocumentUpload)
	text, err := ExtractText(doc)
	if err != nil {
		failStage(&d.BaseCommand, context, err)
		return
	}
	if req := VideoRequestFrom(context); req != nil {
		req.Text = text
		req.IsDocument = true
	}
	d.Succeed(context, text)
}
