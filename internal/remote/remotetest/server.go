// Package remotetest runs an in-process JSonic server for tests.
package remotetest

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/dgnsrekt/jsonic/internal/audio"
	"github.com/dgnsrekt/jsonic/jsonic"
)

// Format is the PCM format of every clip the server produces.
var Format = audio.Format{SampleRate: 22050, Channels: 1, BitsPerSample: 16}

// SynthCall records one utterance received by POST /synth.
type SynthCall struct {
	Engine     string
	Text       string
	Format     string
	Properties map[string]any
}

// Server is a fake JSonic server. Speech clips are silent and last
// ClipDuration; sounds are registered with AddSound.
type Server struct {
	*httptest.Server

	ClipDuration time.Duration

	mu            sync.Mutex
	engines       map[string]jsonic.EngineInfo
	files         map[string][]byte
	sounds        map[string][]byte
	synthCalls    []SynthCall
	soundFetches  map[string]int
	failSynth     int
	synthDelay    time.Duration
	lastUserAgent string
}

// NewServer starts a server with the espeak engine and the sounds "beep"
// and "chime".
func NewServer() *Server {
	s := &Server{
		ClipDuration: 20 * time.Millisecond,
		engines:      map[string]jsonic.EngineInfo{"espeak": espeakInfo()},
		files:        make(map[string][]byte),
		sounds:       make(map[string][]byte),
		soundFetches: make(map[string]int),
	}
	s.AddSound("beep.wav", audio.Silence(15*time.Millisecond, Format))
	s.AddSound("chime.wav", audio.Silence(25*time.Millisecond, Format))

	r := chi.NewRouter()
	r.Get("/engine", s.listEngines)
	r.Get("/engine/{name}", s.engineInfo)
	r.Post("/synth", s.synth)
	r.Get("/files/{name}", s.file)
	r.Get("/sounds/{name}", s.sound)

	s.Server = httptest.NewServer(r)
	return s
}

func espeakInfo() jsonic.EngineInfo {
	f := func(v float64) *float64 { return &v }
	return jsonic.EngineInfo{
		"rate":  {Minimum: f(80), Maximum: f(390), Default: 200.0},
		"pitch": {Minimum: f(0), Maximum: f(1), Default: 0.5},
		"voice": {Values: []string{"default", "default+f1", "en-us", "fr"}, Default: "default"},
	}
}

// AddSound serves data at /sounds/{name}.
func (s *Server) AddSound(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sounds[name] = data
}

// FailSynth makes the next n synthesis requests fail with HTTP 500.
func (s *Server) FailSynth(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSynth = n
}

// SetSynthDelay delays every synthesis reply.
func (s *Server) SetSynthDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthDelay = d
}

// SynthCalls returns the utterances received so far.
func (s *Server) SynthCalls() []SynthCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SynthCall(nil), s.synthCalls...)
}

// SoundFetches returns how often a sound was downloaded.
func (s *Server) SoundFetches(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.soundFetches[name]
}

// UserAgent returns the User-Agent of the last request.
func (s *Server) UserAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUserAgent
}

func (s *Server) listEngines(w http.ResponseWriter, r *http.Request) {
	s.seen(r)
	s.mu.Lock()
	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": names})
}

func (s *Server) engineInfo(w http.ResponseWriter, r *http.Request) {
	s.seen(r)
	s.mu.Lock()
	info, ok := s.engines[chi.URLParam(r, "name")]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "description": "invalid engine"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": info})
}

type synthBody struct {
	Format     string            `json:"format"`
	Engine     string            `json:"engine"`
	Utterances map[string]string `json:"utterances"`
	Properties map[string]any    `json:"properties"`
}

func (s *Server) synth(w http.ResponseWriter, r *http.Request) {
	s.seen(r)

	var body synthBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "description": err.Error()})
		return
	}

	s.mu.Lock()
	delay := s.synthDelay
	fail := s.failSynth > 0
	if fail {
		s.failSynth--
	}
	_, knownEngine := s.engines[body.Engine]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	switch {
	case fail:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "description": "synthesis failed"})
		return
	case !knownEngine:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "description": "unknown speech engine"})
		return
	case body.Format != ".wav":
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "description": "unknown encoder format"})
		return
	}

	props, _ := json.Marshal(body.Properties)
	result := make(map[string]string, len(body.Utterances))

	s.mu.Lock()
	for id, text := range body.Utterances {
		name := digest(text) + "-" + digest(string(props))
		s.files[name+body.Format] = audio.Silence(s.ClipDuration, Format)
		s.synthCalls = append(s.synthCalls, SynthCall{
			Engine:     body.Engine,
			Text:       text,
			Format:     body.Format,
			Properties: body.Properties,
		})
		result[id] = name
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": result})
}

func (s *Server) file(w http.ResponseWriter, r *http.Request) {
	s.seen(r)
	s.mu.Lock()
	data, ok := s.files[chi.URLParam(r, "name")]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Write(data)
}

func (s *Server) sound(w http.ResponseWriter, r *http.Request) {
	s.seen(r)
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	data, ok := s.sounds[name]
	if ok {
		s.soundFetches[name]++
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Write(data)
}

func (s *Server) seen(r *http.Request) {
	s.mu.Lock()
	s.lastUserAgent = r.UserAgent()
	s.mu.Unlock()
}

func digest(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("encoding reply: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// SoundURL returns the absolute URL of a registered sound.
func (s *Server) SoundURL(name string) string {
	return strings.TrimSuffix(s.URL, "/") + "/sounds/" + name
}
