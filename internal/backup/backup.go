// Package backup reads and writes bookmark backups as JSON, YAML or
// Netscape bookmark HTML.
package backup

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/marksync/internal/bookmark"
)

// Format is a backup file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// ErrUnknownFormat is returned for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown backup format")

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return "", errors.Wrapf(ErrUnknownFormat, "%q", s)
	}
}

// Write encodes bs to w in format f.
func Write(w io.Writer, f Format, bs []bookmark.Bookmark) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(bs), "failed to encode json backup")
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(bs); err != nil {
			return errors.Wrap(err, "failed to encode yaml backup")
		}
		return errors.Wrap(enc.Close(), "failed to encode yaml backup")
	case FormatHTML:
		return WriteHTML(w, bs)
	default:
		return errors.Wrapf(ErrUnknownFormat, "%q", f)
	}
}

// Read decodes a backup in format f.
func Read(r io.Reader, f Format) ([]bookmark.Bookmark, error) {
	var bs []bookmark.Bookmark
	switch f {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&bs); err != nil {
			return nil, errors.Wrap(err, "failed to decode json backup")
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&bs); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrap(err, "failed to decode yaml backup")
		}
	case FormatHTML:
		return ParseHTML(r)
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", f)
	}
	return bs, nil
}

// ToContainers arranges bs under the reserved containers. Top-level
// containers are kept and merged by title; every other top-level entry is
// appended to the Other container. The result follows canonical container
// order.
func ToContainers(bs []bookmark.Bookmark) []bookmark.Bookmark {
	children := make(map[bookmark.Container][]bookmark.Bookmark)
	for _, b := range bs {
		if b.Kind() == bookmark.KindContainer {
			c := bookmark.Container(b.Title)
			children[c] = append(children[c], b.Children...)
			continue
		}
		children[bookmark.ContainerOther] = append(children[bookmark.ContainerOther], b)
	}

	var out []bookmark.Bookmark
	for _, c := range bookmark.Containers {
		kids, ok := children[c]
		if !ok {
			continue
		}
		out = append(out, bookmark.Bookmark{Title: string(c), Children: kids})
	}
	return out
}
