// Package ber implements the compact variable-length encoding used by the
// RCI binary protocol.
//
// The encoding is "BER-like" in name only: it is not ASN.1. Every token on
// the wire is a modifier, an unsigned value whose first byte selects how many
// bytes follow.
//
// # Modifiers
//
//	0xxxxxxx            inline 7-bit value
//	100xxxxx b1         13-bit value
//	101000ss ...        2, 4 or 8 big-endian trailing bytes (ss = 0, 1, 2)
//	11100000            NO_VALUE
//	11100001            TERMINATOR
//
// # Tokens
//
// Command, group, field, error and attribute tokens are modifiers whose value
// packs an id together with flag bits. The packing is non-linear: id bits are
// spread around the flag bits, see the Token helpers.
//
// Decoders never consume partial input. When a buffer is too short they
// return ErrShortBuffer together with the number of bytes needed so far, so a
// caller can gather more bytes and retry.
package ber
