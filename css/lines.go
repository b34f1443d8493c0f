package css

import (
	"sort"
	"unicode/utf8"
)

// LineIndex converts byte offsets into line and column positions.
type LineIndex struct {
	src    []byte
	starts []int
}

// NewLineIndex indexes line starts of src. CR, LF, CRLF and FF all end a line.
func NewLineIndex(src []byte) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '\r':
			if i+1 < len(src) && src[i+1] == '\n' {
				i++
			}
			starts = append(starts, i+1)
		case '\n', '\f':
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{src: src, starts: starts}
}

// Position returns zero based line and column of offset. Column counts UTF-16
// code units, as source maps expect.
func (li *LineIndex) Position(offset int) (line, column int) {
	offset = max(0, min(offset, len(li.src)))
	line = sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	for i := li.starts[line]; i < offset; {
		r, size := utf8.DecodeRune(li.src[i:])
		if r >= 0x10000 {
			column += 2
		} else {
			column++
		}
		i += size
	}
	return line, column
}
