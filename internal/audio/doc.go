// Package audio renders artifacts on the local audio device using the oto/v3
// library, and provides a simulated renderer for dry runs and tests.
//
// Builds tagged nocgo replace the device player with a stub, so the package
// and the tests that use MockPlayer build on hosts without cgo or ALSA:
//
//	go test -tags nocgo ./...
package audio
