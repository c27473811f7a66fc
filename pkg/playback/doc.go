// ABOUTME: Package playback streams colored noise to an output device
// ABOUTME: Engine owns one device stream at a time and prepares noise blocks ahead of the device
// Package playback provides the streaming noise engine.
//
// An Engine opens a single mono output stream through an output.Backend
// and fills every device callback from the current noise block, scaled
// by the current volume. Blocks are generated ahead of time on a separate
// goroutine, so callbacks only copy samples. Color and volume changes are
// lock-free and take effect at the next block boundary and the next
// callback respectively.
//
// Example:
//
//	backend, _ := output.New("oto")
//	eng, err := playback.New(playback.Config{Backend: backend})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := eng.Start(noise.Pink, output.DefaultDevice); err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Stop()
package playback
