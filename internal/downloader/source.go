package downloader

import (
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

type sourceKind int

const (
	sourceUnknown sourceKind = iota
	sourceMagnet
	sourceInfoHash
	sourceURL
	sourceFile
)

func classifySource(source string) sourceKind {
	s := strings.TrimSpace(source)
	switch {
	case s == "":
		return sourceUnknown
	case strings.HasPrefix(strings.ToLower(s), "magnet:"):
		return sourceMagnet
	case isHexInfoHash(s):
		return sourceInfoHash
	}
	if u, err := url.Parse(s); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return sourceURL
		}
	}
	return sourceFile
}

func isHexInfoHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ParseIdentity derives the identity of a source without contacting the engine.
// It only succeeds for magnet URIs and bare hex info hashes.
func ParseIdentity(source string) (string, bool) {
	s := strings.TrimSpace(source)
	switch classifySource(s) {
	case sourceMagnet:
		m, err := metainfo.ParseMagnetUri(s)
		if err != nil {
			return "", false
		}
		var zero metainfo.Hash
		if m.InfoHash == zero {
			return "", false
		}
		return m.InfoHash.HexString(), true
	case sourceInfoHash:
		return strings.ToLower(s), true
	}
	return "", false
}

// buildMagnet renders the canonical source descriptor for a transfer.
func buildMagnet(ih metainfo.Hash, name string, trackers []string) string {
	m := metainfo.Magnet{
		InfoHash:    ih,
		DisplayName: name,
		Trackers:    trackers,
	}
	return m.String()
}

// mergeTrackers flattens tiers and appends extras, dropping duplicates and blanks.
func mergeTrackers(tiers [][]string, extra ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(tr string) {
		tr = strings.TrimSpace(tr)
		if tr == "" {
			return
		}
		if _, ok := seen[tr]; ok {
			return
		}
		seen[tr] = struct{}{}
		out = append(out, tr)
	}
	for _, tier := range tiers {
		for _, tr := range tier {
			add(tr)
		}
	}
	for _, list := range extra {
		for _, tr := range list {
			add(tr)
		}
	}
	return out
}

func defaultTrackers() []string {
	return []string{
		"udp://tracker.opentrackr.org:1337/announce",
		"udp://tracker.openbittorrent.com:6969/announce",
		"udp://open.stealth.si:80/announce",
		"udp://exodus.desync.com:6969/announce",
		"http://tracker.opentrackr.org:1337/announce",
		"http://tracker.openbittorrent.com:80/announce",
		"udp://tracker.torrent.eu.org:451/announce",
		"udp://tracker.moeking.me:6969/announce",
	}
}
