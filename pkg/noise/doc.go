// ABOUTME: Colored noise synthesis package
// ABOUTME: Shapes white noise in the frequency domain to a target PSD
// Package noise synthesises colored noise buffers.
//
// A buffer is produced by drawing white Gaussian noise, taking its real
// FFT, scaling every bin by a power spectral density shape normalised to
// unit RMS, and transforming back. Five shapes are supported: white,
// pink, blue, brown and violet.
//
// Example:
//
//	samples, err := noise.Generate(noise.Pink, 44100)
//	if err != nil {
//	    return err
//	}
//
// Generate is safe for concurrent use. A Generator created with
// NewGenerator gives a reproducible stream and must be owned by a single
// goroutine.
package noise
