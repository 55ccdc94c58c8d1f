package core

// parser.go turns raw file content into headers and row mappings.
//
// The delimiter is sniffed once from the header line: semicolon if present,
// comma otherwise. Cells are split positionally with a single layer of
// surrounding quotes stripped; a delimiter inside a quoted cell will split
// that cell. This matches the simple exports the pipeline is fed; RFC-4180
// quoted fields are a known, documented gap.

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrEmptyFile is returned when the file has no non-blank lines.
var ErrEmptyFile = errors.New("file contains no data")

// Parse splits CSV-like content into headers and rows.
//
// Blank lines are discarded before any processing. The first remaining line
// is the header; every later line becomes a ParsedRow with a 1-based source
// line number of (data index + 2), accounting for the header line. Missing
// trailing cells are zipped to empty strings.
func Parse(content string) (*ParsedFile, error) {
	content = string(sanitizeUTF8(stripBOM([]byte(content))))

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, ErrEmptyFile
	}

	delim := sniffDelimiter(lines[0])

	headerCells := strings.Split(lines[0], string(delim))
	headers := make([]string, len(headerCells))
	for i, h := range headerCells {
		headers[i] = cleanCell(h)
	}

	rows := make([]ParsedRow, 0, len(lines)-1)
	for i, line := range lines[1:] {
		rawCells := strings.Split(line, string(delim))
		raw := make([]string, len(rawCells))
		cells := make(map[string]string, len(headers))
		for j, c := range rawCells {
			raw[j] = cleanCell(c)
		}
		for j, h := range headers {
			if j < len(raw) {
				cells[h] = raw[j]
			} else {
				cells[h] = ""
			}
		}
		rows = append(rows, ParsedRow{
			Line:  i + 2,
			Cells: cells,
			Raw:   raw,
		})
	}

	return &ParsedFile{
		Headers:   headers,
		Rows:      rows,
		Delimiter: delim,
	}, nil
}

// sniffDelimiter picks the delimiter from the header line only.
// No per-line re-detection happens afterwards.
func sniffDelimiter(header string) rune {
	if strings.ContainsRune(header, ';') {
		return ';'
	}
	return ','
}

// cleanCell trims whitespace and strips one layer of surrounding quotes.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	if len(s) > 0 && (s[len(s)-1] == '"' || s[len(s)-1] == '\'') {
		s = s[:len(s)-1]
	}
	return strings.TrimSpace(s)
}

// stripBOM removes the UTF-8 byte order mark commonly added by Windows
// spreadsheet exports.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the replacement
// character so downstream string handling stays well-formed.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.Write(data[:size])
			data = data[size:]
		}
	}

	return buf.Bytes()
}
