package object

// Hash is a 64-character hex-encoded SHA-256 digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypePage     ObjectType = "page"
	TypeSnapshot ObjectType = "snapshot"
	TypeProperty ObjectType = "property"
)

// PageObj is one page of a score: a full-size image, its thumbnail, and the
// display number printed on the page. Image and thumbnail are opaque blob
// references; the object layer stores and compares them but never interprets
// the bytes they point at.
type PageObj struct {
	ImageRef string
	ThumbRef string
	Number   string
}

// SnapshotObj is the full ordered page list of a score at one point in its
// history. Page order is part of the identity: the same pages in a different
// order hash differently. Parent links to the preceding snapshot, empty for
// the root.
type SnapshotObj struct {
	Pages  []Hash
	Parent Hash
}

// PropertyObj holds the score-level property record. An empty field means
// unset. Parent links to the preceding property revision, empty for the
// root; the property chain is independent of the snapshot chain.
type PropertyObj struct {
	Title       string
	Description string
	Parent      Hash
}

// RawObject is an object as returned by batch reads: its type plus the
// canonical content bytes.
type RawObject struct {
	Type ObjectType
	Data []byte
}
