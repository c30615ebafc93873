// Package control implements the runtime command plane.
//
// Commands arrive as JSON envelopes on the control queue and mutate or
// query the shared symbol set and collection statistics. Every command
// gets exactly one response, published to the response exchange under
// control.response.<command>, echoing the request's correlation id.
// Commands are handled one at a time in arrival order.
package control
