// Package classify implements the index-grouping and special-index rules:
// stripping date/ordinal suffixes to recover a series's identity, and
// recognizing system/internal indices exempt from lifecycle actions.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/clusterkeeper/ilm/domain/model"
)

const dataStreamPrefix = ".ds-"

// dateToken matches YYYY[.\-_:]MM[.\-_:]DD, any separator mix.
const dateToken = `\d{4}[.\-_:]\d{2}[.\-_:]\d{2}`

var (
	trailingDateRe    = regexp.MustCompile(`-` + dateToken + `$`)
	leadingDateRe     = regexp.MustCompile(`^` + dateToken + `-`)
	trailingOrdinalRe = regexp.MustCompile(`-\d{1,6}$`)
)

// Group derives the series identity of an index name: drop a leading
// ".ds-" (data stream backing-index marker), then strip the trailing
// 1-6 digit ordinal and the trailing or leading date token. The remainder
// is the group. The date is stripped both before and after the ordinal:
// the common shape is group-date-ordinal, where the date only reaches the
// end of the name once the ordinal is gone, but stripping the ordinal
// first would eat the day field of a dash-separated date-only name.
func Group(name string) string {
	g := name
	if strings.HasPrefix(g, dataStreamPrefix) {
		g = g[len(dataStreamPrefix):]
	}
	g = stripDateToken(g)
	g = trailingOrdinalRe.ReplaceAllString(g, "")
	g = stripDateToken(g)
	return g
}

// stripDateToken removes one trailing or leading date token, if present.
func stripDateToken(g string) string {
	if m := trailingDateRe.FindStringIndex(g); m != nil {
		return g[:m[0]]
	}
	if m := leadingDateRe.FindStringIndex(g); m != nil {
		return g[m[1]:]
	}
	return g
}

// specialPrefixes enumerates the reserved index-name roots. A name starting
// with "." is also special unless it is ".monitoring" or a data stream
// backing index (".ds-").
var specialPrefixes = []string{
	"accounting",
	"elastic-ilm",
	"elastastalert",
	"elastalert",
	"readonlyrest",
	".readonlyrest",
	"reflex-",
	"ilm",
}

// IsSpecial reports whether name is a system/internal index exempt from
// retention, rollover, allocation, and force-merge.
func IsSpecial(name string) bool {
	for _, p := range specialPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	if strings.HasPrefix(name, ".") {
		if strings.HasPrefix(name, ".monitoring") || strings.HasPrefix(name, dataStreamPrefix) {
			return false
		}
		return true
	}
	return false
}

// IsWriteIndexForDataStream reports whether index is the write (current
// generation) member of a data stream, by comparing its ordinal suffix to
// the stream's zero-padded generation.
func IsWriteIndexForDataStream(index string, generation int) bool {
	suffix := trailingOrdinalRe.FindString(index)
	if suffix == "" {
		return false
	}
	ordinal := strings.TrimPrefix(suffix, "-")
	want := fmt.Sprintf("%06d", generation)
	// The cluster pads ordinals to 6 digits; compare numerically to be
	// resilient to an unpadded or differently-padded ordinal.
	if ordinal == want {
		return true
	}
	var n int
	if _, err := fmt.Sscanf(ordinal, "%d", &n); err == nil {
		return n == generation
	}
	return false
}

// DataStreamMember synthesizes the AliasMember triple for each index of a
// data stream: (stream name, ith index, write flag). The write member is
// the index whose ordinal suffix equals the stream's generation; an index
// with no ordinal suffix falls back to 1-based position, which only
// matches generation while no backing index has been deleted yet.
func DataStreamMember(streamName string, indices []string, generation int) []model.AliasMember {
	out := make([]model.AliasMember, 0, len(indices))
	for i, idx := range indices {
		isWrite := IsWriteIndexForDataStream(idx, generation)
		if !isWrite && trailingOrdinalRe.FindString(idx) == "" {
			isWrite = i+1 == generation
		}
		out = append(out, model.AliasMember{
			Alias:        streamName,
			Index:        idx,
			IsWriteIndex: isWrite,
		})
	}
	return out
}
