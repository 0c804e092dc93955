// Package detect classifies raw statement bytes into a document type.
// Detection is a pure function: unrecognizable input yields the Unknown
// kind, never an error.
package detect

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/tech1ee/finuts/internal/model"
	"github.com/tech1ee/finuts/internal/parser"
)

const headSize = 4096

var (
	ofxVersionRe  = regexp.MustCompile(`(?i)VERSION[:="]+(\d{3})`)
	camtNamespace = regexp.MustCompile(`camt\.053`)
	camtKindRe    = regexp.MustCompile(`<Tp>\s*<Cd>([A-Z]{4})</Cd>`)
)

// Detect inspects raw bytes and an optional filename hint and decides
// which format parser applies, with what parameters.
func Detect(data []byte, filename string) model.DocumentType {
	if len(data) == 0 {
		return model.DocumentType{Kind: model.DocUnknown}
	}

	if format, ok := imageFormat(data); ok {
		return model.DocumentType{Kind: model.DocImage, ImageFormat: format}
	}

	encoding := detectEncoding(data)
	head := decodeHead(data, encoding)

	if doc, ok := detectOFX(head, encoding); ok {
		return doc
	}
	if doc, ok := detectCAMT(head, encoding); ok {
		return doc
	}
	if doc, ok := detectDelimited(head, encoding); ok {
		return doc
	}

	// Filename extension as a last-resort hint for files whose header
	// tokens were stripped or truncated.
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".ofx", ".qfx":
		return model.DocumentType{Kind: model.DocOFX, Version: "102", Encoding: encoding}
	case ".xml":
		if strings.Contains(head, "<Document") {
			return model.DocumentType{Kind: model.DocCAMT, Encoding: encoding}
		}
	}

	return model.DocumentType{Kind: model.DocUnknown, Encoding: encoding}
}

func imageFormat(data []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "png", true
	case bytes.HasPrefix(data, []byte("\xFF\xD8\xFF")):
		return "jpeg", true
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "gif", true
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "pdf", true
	}
	return "", false
}

// detectEncoding assumes UTF-8 and falls back to windows-1251, the common
// encoding of Russian-language bank exports.
func detectEncoding(data []byte) string {
	sample := data
	if len(sample) > headSize {
		sample = sample[:headSize]
	}
	if utf8.Valid(sample) {
		return "utf-8"
	}
	return "windows-1251"
}

func decodeHead(data []byte, encoding string) string {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if len(data) > headSize {
		data = data[:headSize]
	}
	if encoding == "windows-1251" {
		if decoded, err := charmap.Windows1251.NewDecoder().Bytes(data); err == nil {
			return string(decoded)
		}
	}
	return string(data)
}

func detectOFX(head, encoding string) (model.DocumentType, bool) {
	upper := strings.ToUpper(head)
	if !strings.Contains(upper, "OFXHEADER") && !strings.Contains(upper, "<OFX>") {
		return model.DocumentType{}, false
	}

	version := "102"
	if m := ofxVersionRe.FindStringSubmatch(head); m != nil {
		version = m[1]
	} else if strings.Contains(head, "<?xml") {
		version = "200"
	}
	return model.DocumentType{Kind: model.DocOFX, Version: version, Encoding: encoding}, true
}

func detectCAMT(head, encoding string) (model.DocumentType, bool) {
	if !camtNamespace.MatchString(head) && !strings.Contains(head, "<BkToCstmrStmt") {
		return model.DocumentType{}, false
	}

	kind := ""
	if m := camtKindRe.FindStringSubmatch(head); m != nil {
		switch m[1] {
		case "CACC":
			kind = "current"
		case "CARD":
			kind = "card"
		case "SVGS":
			kind = "savings"
		default:
			kind = strings.ToLower(m[1])
		}
	}
	return model.DocumentType{Kind: model.DocCAMT, AccountKind: kind, Encoding: encoding}, true
}

// detectDelimited requires a first line that reads as a header row: a
// consistent delimiter among comma/semicolon/tab and at least one
// recognizable column name.
func detectDelimited(head, encoding string) (model.DocumentType, bool) {
	line := firstNonBlankLine(head)
	if line == "" || strings.HasPrefix(strings.TrimSpace(line), "<") {
		return model.DocumentType{}, false
	}

	delim, ok := pickDelimiter(line)
	if !ok {
		return model.DocumentType{}, false
	}

	header := splitOutsideQuotes(line, delim)
	cols := parser.DetectColumns(header)
	if cols.Date < 0 && cols.Amount < 0 && cols.Description < 0 {
		return model.DocumentType{}, false
	}

	return model.DocumentType{Kind: model.DocDelimited, Delimiter: delim, Encoding: encoding}, true
}

func firstNonBlankLine(head string) string {
	for _, line := range strings.Split(head, "\n") {
		if strings.TrimSpace(line) != "" {
			return strings.TrimRight(line, "\r")
		}
	}
	return ""
}

// pickDelimiter chooses the candidate with the highest count outside
// quoted regions.
func pickDelimiter(line string) (rune, bool) {
	best := rune(0)
	bestCount := 0
	for _, candidate := range []rune{',', ';', '\t'} {
		count := countOutsideQuotes(line, candidate)
		if count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best, bestCount > 0
}

func countOutsideQuotes(line string, delim rune) int {
	count := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			count++
		}
	}
	return count
}

func splitOutsideQuotes(line string, delim rune) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, current.String())
	return fields
}
