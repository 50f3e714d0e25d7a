// Package pathscope resolves logical installation scopes (global, project)
// to concrete installation roots and defines the fixed locations the
// bundle owns inside a root. It does pure path arithmetic; the only I/O
// is the stat needed to detect an existing installation.
package pathscope
