// Package verify compares merged register arrays position by position. The
// benchmark harness uses it to check the accelerated merge against the
// sequential baseline on the same input.
package verify
