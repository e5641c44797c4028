package doc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strings"
)

// ImageChunk is one embedded raster image pulled out of a container for the
// OCR fallback pass.
type ImageChunk struct {
	Label  string // e.g. "page 2 image 1"
	Data   []byte
	Format string // image format tag inferred from name or magic bytes
}

// harvestImages collects the first embedded raster image of each page or
// slide, up to maxPages, for the given container format.
func harvestImages(data []byte, format string, maxPages int) []ImageChunk {
	switch format {
	case "pptx":
		return harvestPptxImages(data, maxPages)
	case "pdf":
		return harvestPDFImages(data, maxPages)
	default:
		return nil
	}
}

// relationship mirrors one entry of a slide's .rels part.
type relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

type relationships struct {
	Rels []relationship `xml:"Relationship"`
}

// harvestPptxImages resolves each slide's first image relationship to its
// media part. Slides without images are skipped; the page cap counts
// slides inspected, not images found.
func harvestPptxImages(data []byte, maxPages int) []ImageChunk {
	zr, err := openContainer(data, "pptx")
	if err != nil {
		return nil
	}

	var chunks []ImageChunk
	for i, s := range slideParts(zr) {
		if i >= maxPages {
			break
		}
		relName := fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", s.num)
		raw, err := readPart(zr, relName)
		if err != nil || raw == nil {
			continue
		}
		var rels relationships
		if err := xml.Unmarshal(raw, &rels); err != nil {
			continue
		}
		for _, rel := range rels.Rels {
			if !strings.HasSuffix(rel.Type, "/image") {
				continue
			}
			target := path.Clean(path.Join("ppt/slides", rel.Target))
			img, err := readPart(zr, target)
			if err != nil || len(img) == 0 {
				break
			}
			tag := strings.ToLower(strings.TrimPrefix(path.Ext(target), "."))
			if !imageFormats[tag] {
				tag = sniffImageFormat(img)
			}
			chunks = append(chunks, ImageChunk{
				Label:  fmt.Sprintf("slide %d image 1", s.num),
				Data:   img,
				Format: tag,
			})
			break // first image per slide only
		}
	}
	return chunks
}

var (
	jpegSOI = []byte{0xFF, 0xD8, 0xFF}
	jpegEOI = []byte{0xFF, 0xD9}
	pngSig  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	pngEnd  = []byte("IEND")
)

// harvestPDFImages scans the raw document bytes for embedded JPEG and PNG
// streams. PDF stores DCTDecode images as verbatim JPEG data, so marker
// scanning recovers them without a full object-graph walk; one image per
// scan position, capped at maxPages images total.
func harvestPDFImages(data []byte, maxPages int) []ImageChunk {
	var chunks []ImageChunk
	rest := data
	for len(chunks) < maxPages {
		jpg, jrest := nextJPEG(rest)
		png, prest := nextPNG(rest)

		var img []byte
		var format string
		switch {
		case jpg == nil && png == nil:
			return chunks
		case png == nil || (jpg != nil && len(rest)-len(jrest) < len(rest)-len(prest)):
			img, format, rest = jpg, "jpg", jrest
		default:
			img, format, rest = png, "png", prest
		}

		// Tiny streams are icons or decoration, not page content.
		if len(img) < 1024 {
			continue
		}
		chunks = append(chunks, ImageChunk{
			Label:  fmt.Sprintf("page %d image 1", len(chunks)+1),
			Data:   img,
			Format: format,
		})
	}
	return chunks
}

// nextJPEG returns the first complete JPEG stream in data and the remainder
// after it, or (nil, nil).
func nextJPEG(data []byte) (img, rest []byte) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		return nil, nil
	}
	end := bytes.Index(data[start:], jpegEOI)
	if end < 0 {
		return nil, nil
	}
	end += start + len(jpegEOI)
	return data[start:end], data[end:]
}

// nextPNG returns the first complete PNG stream in data and the remainder
// after it, or (nil, nil).
func nextPNG(data []byte) (img, rest []byte) {
	start := bytes.Index(data, pngSig)
	if start < 0 {
		return nil, nil
	}
	end := bytes.Index(data[start:], pngEnd)
	if end < 0 {
		return nil, nil
	}
	// IEND chunk: 4-byte length + "IEND" + 4-byte CRC.
	end += start + len(pngEnd) + 4
	if end > len(data) {
		end = len(data)
	}
	return data[start:end], data[end:]
}

// sniffImageFormat infers a format tag from magic bytes.
func sniffImageFormat(img []byte) string {
	switch {
	case bytes.HasPrefix(img, pngSig):
		return "png"
	case bytes.HasPrefix(img, jpegSOI):
		return "jpg"
	case bytes.HasPrefix(img, []byte("GIF8")):
		return "gif"
	case bytes.HasPrefix(img, []byte("BM")):
		return "bmp"
	case len(img) > 12 && bytes.Equal(img[8:12], []byte("WEBP")):
		return "webp"
	default:
		return "jpg"
	}
}
