// Package argv classifies a raw linker command line into the tokens
// the external linker receives and the options this driver consumes.
//
// The driver presents the external linker's own CLI, so classification
// must not disturb it: unrecognized flags, positional arguments and
// everything after a literal "--" forward verbatim in original order.
// A table of the linker's long flags keeps flag/value pairs adjacent
// when the value rides as a separate token. Response files (@path)
// expand before classification, with POSIX or Windows quoting.
package argv
