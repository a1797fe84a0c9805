// Package validation provides input validation and sanitization functions
// for user-supplied filenames and uploads.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// Security limits to prevent resource exhaustion (CWE-400).
const (
	// MaxFilenameLength is the maximum allowed filename length in bytes.
	MaxFilenameLength = 255
)

// DefaultOutputName is used when a job has no usable filename.
const DefaultOutputName = "document"

// OutputExtension is appended to every download name.
const OutputExtension = ".hwpx"

// Common validation errors.
var (
	ErrInvalidFilename = errors.New("invalid filename")
	ErrFilenameTooLong = errors.New("filename too long")
)

// reservedChars are replaced in download names. Hangul and other letters are kept.
var reservedChars = regexp.MustCompile(`[<>:"|?*]`)

// ValidateFilename checks that a filename is safe to use as a single path
// element or a Content-Disposition value.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	return nil
}

// SanitizeFilename rewrites user input into a safe filename: separators,
// parent references, and reserved characters become underscores; control
// characters and leading hyphens are dropped.
func SanitizeFilename(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", ErrInvalidFilename
	}

	filename = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(filename)
	filename = reservedChars.ReplaceAllString(filename, "_")

	var cleaned strings.Builder
	for _, r := range filename {
		if !unicode.IsControl(r) {
			cleaned.WriteRune(r)
		}
	}
	filename = strings.TrimSpace(strings.TrimLeft(cleaned.String(), "-"))

	if len(filename) > MaxFilenameLength {
		filename = truncateUTF8(filename, MaxFilenameLength)
	}
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filename, nil
}

// OutputFilename turns a requested download name into a sanitized name that
// ends in .hwpx. Unusable input falls back to DefaultOutputName.
func OutputFilename(requested string) string {
	base := strings.TrimSpace(requested)
	if strings.EqualFold(filepath.Ext(base), OutputExtension) {
		base = base[:len(base)-len(OutputExtension)]
	}
	name, err := SanitizeFilename(base)
	if err != nil {
		name = DefaultOutputName
	}
	name = truncateUTF8(name, MaxFilenameLength-len(OutputExtension))
	return name + OutputExtension
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// FileType represents a detected upload type.
type FileType string

const (
	FileTypeHWPX    FileType = "hwpx"
	FileTypeXML     FileType = "xml"
	FileTypeText    FileType = "text"
	FileTypeUnknown FileType = "unknown"
)

var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// ValidateFileType checks that content read from reader is consistent with
// the extension of filename. Only the first 512 bytes are consumed.
func ValidateFileType(reader io.Reader, filename string) (FileType, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	detected := detectFileType(buf)
	expected := fileTypeFromExtension(filename)

	switch {
	case expected == FileTypeUnknown:
		return detected, nil
	case expected == FileTypeHWPX && detected != FileTypeHWPX:
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is %s", expected, detected)
	case (expected == FileTypeText || expected == FileTypeXML) && detected == FileTypeHWPX:
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is %s", expected, detected)
	case expected == FileTypeXML && !isLikelyText(buf):
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is binary", expected)
	case expected == FileTypeText && !isLikelyText(buf) && len(buf) > 0:
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is binary", expected)
	}
	return expected, nil
}

func detectFileType(buf []byte) FileType {
	if bytes.HasPrefix(buf, zipMagic) {
		return FileTypeHWPX
	}
	if isLikelyText(buf) {
		trimmed := bytes.TrimSpace(buf)
		if bytes.HasPrefix(trimmed, []byte("<")) {
			return FileTypeXML
		}
		return FileTypeText
	}
	return FileTypeUnknown
}

func fileTypeFromExtension(filename string) FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hwpx":
		return FileTypeHWPX
	case ".xml":
		return FileTypeXML
	case ".txt", ".md", ".markdown":
		return FileTypeText
	default:
		return FileTypeUnknown
	}
}

// isLikelyText reports whether buf looks like UTF-8 or ASCII text.
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}

	printable, control := 0, 0
	for _, b := range buf {
		switch {
		case b >= 0x20 || b == '\t' || b == '\n' || b == '\r':
			printable++
		default:
			control++
		}
	}
	return float64(printable)/float64(printable+control) > 0.95
}
