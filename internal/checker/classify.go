package checker

import (
	"net/url"
	"strings"
)

// Kind is the dispatch class of a reference.
type Kind int

const (
	// KindLocal references are resolved against the file set.
	KindLocal Kind = iota

	// KindRemote references (http, https) are probed over the network.
	KindRemote

	// KindOther references use any other scheme and are valid by default.
	KindOther
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Classify returns the dispatch class of ref.
//
// References without a scheme are local. A reference that cannot be parsed
// as a URI is also local, so the resolver reports it as not found unless it
// names a file.
func Classify(ref string) Kind {
	u, err := url.Parse(ref)
	if err != nil {
		return KindLocal
	}
	switch strings.ToLower(u.Scheme) {
	case "":
		return KindLocal
	case "http", "https":
		return KindRemote
	default:
		return KindOther
	}
}
