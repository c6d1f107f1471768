package repo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SnapshotMask is a bit set over SnapshotFormats
type SnapshotMask uint32

// SnapshotFormat is one downloadable archive format
type SnapshotFormat struct {
	Suffix   string
	MimeType string
	Bit      SnapshotMask
}

// SnapshotFormats lists the archive formats in their fixed order
var SnapshotFormats = []SnapshotFormat{
	{Suffix: ".zip", MimeType: "application/x-zip", Bit: 0x01},
	{Suffix: ".tar.gz", MimeType: "application/x-gzip", Bit: 0x02},
	{Suffix: ".tar.bz2", MimeType: "application/x-bzip2", Bit: 0x04},
	{Suffix: ".tar", MimeType: "application/x-tar", Bit: 0x08},
	{Suffix: ".tar.xz", MimeType: "application/x-xz", Bit: 0x10},
}

// SnapshotsAll enables every known format
const SnapshotsAll SnapshotMask = 0x1f

// ParseSnapshots parses "all" or a list of format suffixes separated by
// whitespace. Suffixes may be written with or without the leading dot.
// Unknown tokens are ignored.
func ParseSnapshots(value string) SnapshotMask {
	if strings.TrimSpace(value) == "all" {
		return SnapshotsAll
	}

	var mask SnapshotMask
	for _, token := range strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	}) {
		for _, f := range SnapshotFormats {
			if token == f.Suffix || token == f.Suffix[1:] {
				mask |= f.Bit
				break
			}
		}
	}
	return mask
}

// Formats returns the enabled formats in their fixed order
func (m SnapshotMask) Formats() []SnapshotFormat {
	var formats []SnapshotFormat
	for _, f := range SnapshotFormats {
		if m&f.Bit != 0 {
			formats = append(formats, f)
		}
	}
	return formats
}

// String joins the enabled suffixes with single spaces
func (m SnapshotMask) String() string {
	formats := m.Formats()
	suffixes := make([]string, 0, len(formats))
	for _, f := range formats {
		suffixes = append(suffixes, f.Suffix)
	}
	return strings.Join(suffixes, " ")
}

// MarshalJSON encodes the mask as its list of suffixes
func (m SnapshotMask) MarshalJSON() ([]byte, error) {
	suffixes := []string{}
	for _, f := range m.Formats() {
		suffixes = append(suffixes, f.Suffix)
	}
	return json.Marshal(suffixes)
}

// UnmarshalJSON decodes a list of suffixes. Unknown suffixes are rejected.
func (m *SnapshotMask) UnmarshalJSON(data []byte) error {
	var suffixes []string
	if err := json.Unmarshal(data, &suffixes); err != nil {
		return err
	}
	var mask SnapshotMask
	for _, suffix := range suffixes {
		bit := ParseSnapshots(suffix)
		if bit == 0 {
			return fmt.Errorf("unknown snapshot format %q", suffix)
		}
		mask |= bit
	}
	*m = mask
	return nil
}
