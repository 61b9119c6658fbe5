// Package remote talks to a JSonic rendering server over its REST API.
// It implements jsonic.Service: speech synthesis, sound fetching and
// engine discovery.
package remote
