// Package hwpx inspects HWPX reference templates: it verifies the archive
// structure and extracts outline styles from Contents/header.xml.
package hwpx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	corexml "github.com/FocuswithJustin/hwpxreport/core/xml"
)

// MimeType is the required content of the "mimetype" entry.
const MimeType = "application/hwp+zip"

// Archive entry names.
const (
	MimeTypeEntry = "mimetype"
	HeaderEntry   = "Contents/header.xml"
	SectionEntry  = "Contents/section0.xml"
	VersionEntry  = "version.xml"
	ContainerXML  = "META-INF/container.xml"
)

// maxHeaderSize bounds the decompressed header read from an upload.
const maxHeaderSize = 16 << 20

// Package is the structural summary of an inspected template.
type Package struct {
	Entries []string
	Header  []byte
}

// Has reports whether the archive contains name.
func (p *Package) Has(name string) bool {
	for _, e := range p.Entries {
		if e == name {
			return true
		}
	}
	return false
}

// Inspect checks that data is a well-formed HWPX archive. It does not
// validate styles or section content beyond XML well-formedness of the header.
func Inspect(data []byte) (*Package, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, invalid("payload is not a zip archive", err)
	}

	pkg := &Package{}
	var mimetype, header *zip.File
	for _, f := range r.File {
		pkg.Entries = append(pkg.Entries, f.Name)
		switch f.Name {
		case MimeTypeEntry:
			mimetype = f
		case HeaderEntry:
			header = f
		}
	}

	if mimetype == nil {
		return nil, invalid("archive has no mimetype entry", nil)
	}
	mt, err := readEntry(mimetype, 256)
	if err != nil {
		return nil, invalid("mimetype entry is unreadable", err)
	}
	if got := strings.TrimSpace(string(mt)); got != MimeType {
		return nil, invalid(fmt.Sprintf("unexpected mimetype %q", got), nil)
	}

	if header == nil {
		return nil, invalid("archive has no "+HeaderEntry, nil)
	}
	pkg.Header, err = readEntry(header, maxHeaderSize)
	if err != nil {
		return nil, invalid("header entry is unreadable", err)
	}
	if res := corexml.Validate(pkg.Header); !res.Valid {
		return nil, invalid("header is not well-formed XML", nil)
	}

	return pkg, nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}

func invalid(message string, err error) error {
	return &errors.ValidationError{
		Field:   "template",
		Message: message,
		Err:     err,
	}
}
