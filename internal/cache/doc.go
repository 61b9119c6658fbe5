// Package cache maps request fingerprints to resolved remote artifacts.
// Concurrent resolutions of the same fingerprint are coalesced so the
// remote service is asked at most once, and the resolved entries can be
// persisted to a compressed snapshot between runs.
package cache
