// Package command defines the parsed command model and the tokenizer that
// turns raw request text into it.
//
// A parsed command is a tagged union: either a single prompt invocation or an
// ordered chain of steps. Downstream stages switch on Kind exhaustively
// instead of sniffing shapes.
package command
