package doc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// openContainer opens a zip-based office container.
func openContainer(data []byte, format string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &StructureError{Format: format, Reason: "not a zip container"}
	}
	return zr, nil
}

// readPart reads one file from a container by exact name.
func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open part %s: %w", name, err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, nil
}

// collectRuns streams an XML part and gathers the character data of every
// element with the given local name, in document order. Elements named in
// breakAfter contribute a line break when they close.
func collectRuns(part []byte, textLocal string, breakAfter map[string]bool) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(part))
	var (
		sb     strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textLocal {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == textLocal {
				inText = false
			}
			if breakAfter[t.Name.Local] {
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

// extractDocx reads the word-processing body part and concatenates its text
// runs, one line per paragraph.
func extractDocx(data []byte) (string, error) {
	zr, err := openContainer(data, "docx")
	if err != nil {
		return "", err
	}
	body, err := readPart(zr, "word/document.xml")
	if err != nil {
		return "", err
	}
	if body == nil {
		return "", &StructureError{Format: "docx", Reason: "missing word/document.xml"}
	}
	text, err := collectRuns(body, "t", map[string]bool{"p": true})
	if err != nil {
		return "", &StructureError{Format: "docx", Reason: err.Error()}
	}
	return html.UnescapeString(text), nil
}

var slidePartPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type slidePart struct {
	num  int
	file *zip.File
}

// slideParts returns the slide XML parts sorted by numeric slide index.
// Directory order inside the archive is not guaranteed numeric: slide10
// commonly lists before slide2.
func slideParts(zr *zip.Reader) []slidePart {
	var slides []slidePart
	for _, f := range zr.File {
		if m := slidePartPattern.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slidePart{num: n, file: f})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })
	return slides
}

// extractPptx walks slides in numeric order, prefixing each slide's text
// block with its page number. Accumulation stops once the output cap is
// reached; later slides cannot contribute anyway.
func extractPptx(data []byte, limits Limits) (string, error) {
	zr, err := openContainer(data, "pptx")
	if err != nil {
		return "", err
	}
	slides := slideParts(zr)
	if len(slides) == 0 {
		return "", &StructureError{Format: "pptx", Reason: "no slide parts"}
	}

	var sb strings.Builder
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			continue
		}
		part, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		text, err := collectRuns(part, "t", map[string]bool{"p": true})
		if err != nil {
			continue
		}
		text = strings.TrimSpace(html.UnescapeString(text))
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "【第%d页】\n%s\n", s.num, text)
		if len([]rune(sb.String())) >= limits.MaxChars {
			break
		}
	}
	return sb.String(), nil
}
