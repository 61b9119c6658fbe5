package remote

import json "github.com/goccy/go-json"

// synthRequest is the body of POST /synth.
type synthRequest struct {
	Format     string            `json:"format"`
	Engine     string            `json:"engine"`
	Utterances map[string]string `json:"utterances"`
	Properties synthProperties   `json:"properties"`
}

type synthProperties struct {
	Voice string  `json:"voice,omitempty"`
	Rate  int     `json:"rate,omitempty"`
	Pitch float64 `json:"pitch"`
}

// envelope wraps every JSON reply of the server.
type envelope struct {
	Success     bool            `json:"success"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
}
