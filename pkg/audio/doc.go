// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and float sample conversion functions
// Package audio provides the stream format and sample conversions shared
// by the output backends.
//
// Samples travel through the engine as float32 in [-1, 1]. Backends that
// need integer PCM convert at the edge:
//
//	n := audio.PutInt16LE(buf, samples)
package audio
