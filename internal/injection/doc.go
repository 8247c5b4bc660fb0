// Package injection decides, per request and per injection type, whether
// guidance text should be added to a prompt.
//
// Resolution walks a fixed priority cascade: command modifiers, runtime
// overrides, step config, chain config, category config, global config, then
// the system default (inject). The first tier that is applicable wins and is
// recorded as the decision's source. Decisions are cached per request on the
// caller-owned Cache, so every stage that asks gets the same answer.
package injection
