// Package uno implements the control channel to the office worker's
// automation endpoint.
//
// The worker opens a loopback accept socket a few seconds after spawn, so
// connection establishment runs through a budget-weighted retry policy:
// a refused connection only means the worker is still starting and is
// cheap to retry, any other dial error burns the budget faster.
//
// On top of the established connection sit two capability clients, one per
// class of delegated work: the Converter (document conversion plus filter
// catalog queries) and the Comparer (document comparison). Each owns its
// own session and the two are brought up strictly one after the other
// during service startup.
package uno
