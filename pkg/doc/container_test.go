package doc

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

// buildZip assembles an in-memory container from name→content pairs.
func buildZip(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range parts {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const docxBody = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>第一段文字</w:t></w:r><w:r><w:t>续写</w:t></w:r></w:p>
    <w:p><w:r><w:t>第二段 &amp; 符号</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestExtractDocx(t *testing.T) {
	data := buildZip(t, map[string]string{"word/document.xml": docxBody})
	text, err := extractDocx(data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "第一段文字续写") {
		t.Errorf("runs not concatenated in order: %q", text)
	}
	if !strings.Contains(text, "第二段 & 符号") {
		t.Errorf("entities not unescaped: %q", text)
	}
	if !strings.Contains(text, "第一段文字续写\n") {
		t.Errorf("paragraphs should break lines: %q", text)
	}
}

func TestExtractDocx_MissingBody(t *testing.T) {
	data := buildZip(t, map[string]string{"word/other.xml": "<x/>"})
	_, err := extractDocx(data)
	var se *StructureError
	if !errors.As(err, &se) {
		t.Fatalf("want StructureError, got %v", err)
	}
}

func TestExtractDocx_NotAZip(t *testing.T) {
	var se *StructureError
	if _, err := extractDocx([]byte("plain bytes")); !errors.As(err, &se) {
		t.Fatalf("want StructureError for non-zip input, got %v", err)
	}
}

func slideXML(text string) string {
	return `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody>
    <a:p><a:r><a:t>` + text + `</a:t></a:r></a:p>
  </p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`
}

func TestExtractPptx_NumericSlideOrder(t *testing.T) {
	// Archive order is alphabetical: slide10 would come before slide2.
	data := buildZip(t, map[string]string{
		"ppt/slides/slide10.xml": slideXML("最后一页"),
		"ppt/slides/slide1.xml":  slideXML("开场"),
		"ppt/slides/slide2.xml":  slideXML("中间"),
	})
	text, err := extractPptx(data, DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}

	i1 := strings.Index(text, "开场")
	i2 := strings.Index(text, "中间")
	i10 := strings.Index(text, "最后一页")
	if i1 < 0 || i2 < 0 || i10 < 0 {
		t.Fatalf("missing slide text: %q", text)
	}
	if !(i1 < i2 && i2 < i10) {
		t.Errorf("slides out of numeric order: %q", text)
	}
	if !strings.Contains(text, "【第2页】") || !strings.Contains(text, "【第10页】") {
		t.Errorf("slide number prefixes missing: %q", text)
	}
}

func TestExtractPptx_NoSlides(t *testing.T) {
	data := buildZip(t, map[string]string{"ppt/presentation.xml": "<x/>"})
	var se *StructureError
	if _, err := extractPptx(data, DefaultLimits()); !errors.As(err, &se) {
		t.Fatalf("want StructureError, got %v", err)
	}
}

func TestExtractPptx_StopsAtCap(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxChars = 30
	data := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml": slideXML(strings.Repeat("字", 40)),
		"ppt/slides/slide2.xml": slideXML("不应出现"),
	})
	text, err := extractPptx(data, limits)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(text, "不应出现") {
		t.Errorf("accumulation should stop once the cap is reached: %q", text)
	}
}

func TestHarvestPptxImages(t *testing.T) {
	rels := `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image1.png"/>
</Relationships>`
	pngData := string(pngSig) + "fakechunks" + "IEND\x00\x00\x00\x00"
	data := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml":            slideXML("有图"),
		"ppt/slides/_rels/slide1.xml.rels": rels,
		"ppt/media/image1.png":             pngData,
	})

	chunks := harvestPptxImages(data, 4)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Format != "png" {
		t.Errorf("format = %q, want png", chunks[0].Format)
	}
	if chunks[0].Label != "slide 1 image 1" {
		t.Errorf("label = %q", chunks[0].Label)
	}
}

func TestHarvestImages_PageCap(t *testing.T) {
	parts := map[string]string{}
	rels := `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/pic.png"/>
</Relationships>`
	for _, n := range []string{"1", "2", "3", "4", "5", "6"} {
		parts["ppt/slides/slide"+n+".xml"] = slideXML("s" + n)
		parts["ppt/slides/_rels/slide"+n+".xml.rels"] = rels
	}
	parts["ppt/media/pic.png"] = string(pngSig) + "xIEND\x00\x00\x00\x00"

	chunks := harvestImages(buildZip(t, parts), "pptx", 4)
	if len(chunks) != 4 {
		t.Errorf("page cap not applied: got %d chunks", len(chunks))
	}
}
