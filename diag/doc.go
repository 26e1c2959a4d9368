// Package diag renders pipeline errors for the terminal. Structured
// errors become a head line plus one indented line per carried fact;
// anything else prints as-is. Styling applies only when stderr is a
// terminal, and an external-linker exit status renders nothing at all
// since the linker already wrote its own diagnostics.
package diag
