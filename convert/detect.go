package convert

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

type srcEncoding int

const (
	encUnknown srcEncoding = iota
	encUTF8
	encUTF16BigEndian
	encUTF16LittleEndian
	encUTF32BigEndian
	encUTF32LittleEndian
)

func (e srcEncoding) String() string {
	switch e {
	case encUTF8:
		return "UTF-8"
	case encUTF16BigEndian:
		return "UTF-16BE"
	case encUTF16LittleEndian:
		return "UTF-16LE"
	case encUTF32BigEndian:
		return "UTF-32BE"
	case encUTF32LittleEndian:
		return "UTF-32LE"
	default:
		return "unknown"
	}
}

// detectUTF looks for byte order mark. UTF-32LE must be checked before
// UTF-16LE, they share first two bytes.
func detectUTF(buf []byte) srcEncoding {
	switch {
	case bytes.HasPrefix(buf, []byte{0xEF, 0xBB, 0xBF}):
		return encUTF8
	case bytes.HasPrefix(buf, []byte{0x00, 0x00, 0xFE, 0xFF}):
		return encUTF32BigEndian
	case bytes.HasPrefix(buf, []byte{0xFF, 0xFE, 0x00, 0x00}):
		return encUTF32LittleEndian
	case bytes.HasPrefix(buf, []byte{0xFE, 0xFF}):
		return encUTF16BigEndian
	case bytes.HasPrefix(buf, []byte{0xFF, 0xFE}):
		return encUTF16LittleEndian
	}
	return encUnknown
}

func (e srcEncoding) decoder() *encoding.Decoder {
	switch e {
	case encUTF8:
		return unicode.UTF8BOM.NewDecoder()
	case encUTF16BigEndian:
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
	case encUTF16LittleEndian:
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	case encUTF32BigEndian:
		return utf32.UTF32(utf32.BigEndian, utf32.ExpectBOM).NewDecoder()
	case encUTF32LittleEndian:
		return utf32.UTF32(utf32.LittleEndian, utf32.ExpectBOM).NewDecoder()
	}
	return nil
}

var charsetPrefix = []byte(`@charset "`)

// charsetRule returns name from leading @charset rule and length of the
// rule. Only exact form `@charset "name";` is recognized.
func charsetRule(data []byte) (string, int) {
	if !bytes.HasPrefix(data, charsetPrefix) {
		return "", 0
	}
	rest := data[len(charsetPrefix):]
	end := bytes.Index(rest, []byte(`";`))
	if end <= 0 || bytes.ContainsAny(rest[:end], "\"\n\r") {
		return "", 0
	}
	return string(rest[:end]), len(charsetPrefix) + end + 2
}

// decodeSource converts stylesheet bytes to UTF-8. Byte order mark wins over
// @charset rule which wins over forced encoding. When conversion happened
// @charset rule is rewritten to name UTF-8. It returns the name of detected
// character set.
func decodeSource(data []byte, forced encoding.Encoding) ([]byte, string, error) {
	if enc := detectUTF(data); enc != encUnknown {
		out, err := enc.decoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("unable to decode %s input: %w", enc, err)
		}
		return out, enc.String(), nil
	}

	if name, n := charsetRule(data); n > 0 {
		enc, err := ianaindex.IANA.Encoding(name)
		if err != nil || enc == nil {
			return nil, "", fmt.Errorf("unsupported @charset %q", name)
		}
		if isUTF8(enc) {
			return data, "UTF-8", nil
		}
		out, err := enc.NewDecoder().Bytes(data[n:])
		if err != nil {
			return nil, "", fmt.Errorf("unable to decode input from %s: %w", name, err)
		}
		return append([]byte(`@charset "UTF-8";`), out...), name, nil
	}

	if forced != nil && !isUTF8(forced) {
		out, err := forced.NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("unable to decode input from forced character set: %w", err)
		}
		name, _ := ianaindex.IANA.Name(forced)
		return out, name, nil
	}
	return data, "UTF-8", nil
}

func isUTF8(enc encoding.Encoding) bool {
	name, err := ianaindex.IANA.Name(enc)
	return err == nil && strings.EqualFold(name, "UTF-8")
}

// isArchiveFile checks both extension and content of the file.
func isArchiveFile(path string) (bool, error) {
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return filetype.Is(head[:n], "zip"), nil
}
