package ports

// Classifier assigns classification tags to a path (e.g. "python",
// "markdown"). File-type tag classification is named out of scope for the
// core as functionality (§1); only this interface is in scope, so hooks can
// be restricted by `types` without the core owning a content sniffer.
type Classifier interface {
	Tags(path string) []string
}
