package task

import "strings"

// Translator rewrites paths between the three filesystem views involved in
// a task run: the host view callers use in requests, the daemon's local
// results tree, and the execution context the task runs in.
type Translator struct {
	// HostRoot is the prefix under which callers address job workspaces.
	HostRoot string

	// LocalRoot is the daemon's local results root.
	LocalRoot string

	// ContextRoot is where the job's base directory is bind-mounted
	// inside the execution context.
	ContextRoot string
}

// ToLocal maps a caller-visible path onto the daemon's local filesystem.
func (t Translator) ToLocal(p string) string {
	return replacePrefix(p, t.HostRoot, t.LocalRoot)
}

// ToContext maps a path under the job's base directory into the execution
// context's view. Paths outside baseDir are returned unchanged, which makes
// the translation idempotent.
func (t Translator) ToContext(p, baseDir string) string {
	return replacePrefix(p, baseDir, t.ContextRoot)
}

// replacePrefix substitutes prefix with replacement exactly once, at the
// start of p, and leaves p unchanged when the prefix is absent.
func replacePrefix(p, prefix, replacement string) string {
	if prefix == "" || !strings.HasPrefix(p, prefix) {
		return p
	}
	return replacement + p[len(prefix):]
}
