package doc

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// codec is one entry in the ordered decode chain.
type codec struct {
	name string
	enc  encoding.Encoding
}

// decodeChain is tried in order; the first clean decode wins. The order
// matters: GB18030 accepts most byte sequences, so the stricter Unicode
// codecs must come first, and Big5 after GB18030 would rarely be reached
// for simplified-Chinese input, which is the dominant case here.
var decodeChain = []codec{
	{"utf-16le", unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)},
	{"utf-16be", unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)},
	{"gb18030", simplifiedchinese.GB18030},
	{"big5", traditionalchinese.Big5},
}

// DecodeText decodes a byte blob of unknown encoding into a string.
// BOM-less UTF-16 is sniffed first, then plain UTF-8, then UTF-16 with a
// BOM, then the CJK legacy codepages; the final fallback is lossy UTF-8
// replacement so the call never fails.
func DecodeText(data []byte) string {
	// The UTF-16 guess runs before the UTF-8 shortcut: BOM-less UTF-16
	// with ASCII in it is byte-for-byte valid UTF-8, just full of NULs,
	// and genuine UTF-8 text never carries the NUL layout the guess needs.
	if enc, ok := utf16Guess(data); ok {
		out, err := enc.NewDecoder().Bytes(data)
		if err == nil && utf8.Valid(out) && !strings.ContainsRune(string(out), utf8.RuneError) {
			return string(out)
		}
	}
	if utf8.Valid(data) {
		return string(data)
	}
	for _, c := range decodeChain {
		out, err := c.enc.NewDecoder().Bytes(data)
		if err == nil && utf8.Valid(out) && !strings.ContainsRune(string(out), utf8.RuneError) {
			return string(out)
		}
	}
	return strings.ToValidUTF8(string(data), "�")
}

// sniffLimit bounds how much of a blob the binary sniffer inspects.
const sniffLimit = 4096

// utf16Guess detects BOM-less UTF-16 from the NUL layout of the sniff
// window. ASCII code points put a NUL in the high byte of each unit, so
// NULs clustering on odd indices mean little-endian, even indices mean
// big-endian. Requires NULs in at least a tenth of the units and a
// strongly one-sided split, so legacy codepages never trigger it.
func utf16Guess(data []byte) (encoding.Encoding, bool) {
	n := min(len(data), sniffLimit)
	n &^= 1
	if n < 4 {
		return nil, false
	}
	var even, odd int
	for i, b := range data[:n] {
		if b != 0 {
			continue
		}
		if i%2 == 0 {
			even++
		} else {
			odd++
		}
	}
	units := n / 2
	switch {
	case odd*10 >= units && odd > even*4:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), true
	case even*10 >= units && even > odd*4:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), true
	}
	return nil, false
}

// looksBinary reports whether a blob is binary rather than text: any NUL
// byte, or more than 30% control bytes, within the first 4 KiB.
func looksBinary(data []byte) bool {
	n := len(data)
	if n == 0 {
		return false
	}
	if n > sniffLimit {
		n = sniffLimit
	}
	var control int
	for _, b := range data[:n] {
		if b == 0 {
			return true
		}
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return float64(control) > 0.3*float64(n)
}
