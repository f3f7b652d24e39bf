// Package wildcard loads wildcard lists and expands prompt templates.
//
// # Template syntax
//
//	__name__            one entry of the wildcard "name", drawn without
//	                    replacement; nested paths like __animals/cats__ and
//	                    globs like __animals/*__ or __colors/[wc]*__
//	                    are allowed
//	{A|B|C}             exactly one option
//	{2$$A|B|C}          two distinct options joined with ", "
//	{1-3$$A|B|C}        between one and three options; counts start at 1
//	{2$$A|B|C@@ and }   two options joined with " and "
//
// Options may contain wildcards and further groups. Entries drawn from a
// wildcard are expanded again, up to a fixed depth; a wildcard that
// reaches itself fails with ErrWildcardCycle.
//
// # Wildcard files
//
// Load walks a directory. Each .txt file is one list named by its path
// relative to the root with the extension removed; one entry per line,
// blank lines and '#' comments ignored. YAML files may hold a single
// sequence or nested mappings of sequences.
//
// # Random and combinatorial resolution
//
// Resolve draws one result using a caller-owned Context that holds the
// Cycler and random source, so sessions never share state. ResolveAll
// enumerates every combination lazily after checking the total against a
// ceiling.
package wildcard
