// Package status builds the JSON document a server list ping answers with.
package status

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

// Defaults advertised when the configuration leaves a field empty.
const (
	DefaultVersionName = "1.19.3"
	DefaultProtocol    = 761
	DefaultMaxPlayers  = 10
	DefaultMOTD        = "§cHello §b§lWORLD!"
)

// Version identifies the game version the server claims to run.
type Version struct {
	Name     string `json:"name"`
	Protocol uint64 `json:"protocol"`
}

// PlayerSample is one entry of the hover list in the client's server browser.
type PlayerSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Players holds the player counts shown next to the server entry.
type Players struct {
	Max    uint64         `json:"max"`
	Online uint64         `json:"online"`
	Sample []PlayerSample `json:"sample"`
}

// Description is the message of the day.
type Description struct {
	Text string `json:"text"`
}

// Data is the status document.
type Data struct {
	Version            Version     `json:"version"`
	Players            Players     `json:"players"`
	Description        Description `json:"description"`
	Favicon            string      `json:"favicon,omitempty"`
	EnforcesSecureChat bool        `json:"enforcesSecureChat"`
}

// NewData returns a document with the default version and player limit, the
// given MOTD and a random online count between 0 and the limit.
func NewData(motd string) Data {
	return Data{
		Version: Version{Name: DefaultVersionName, Protocol: DefaultProtocol},
		Players: Players{
			Max:    DefaultMaxPlayers,
			Online: rand.Uint64N(DefaultMaxPlayers + 1),
			Sample: []PlayerSample{},
		},
		Description: Description{Text: motd},
	}
}

// Marshal serializes d. A nil sample list is written as an empty array.
func (d Data) Marshal() ([]byte, error) {
	if d.Players.Sample == nil {
		d.Players.Sample = []PlayerSample{}
	}

	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal status: %w", err)
	}

	return data, nil
}

// BuildStatusPayload serializes NewData(motd).
func BuildStatusPayload(motd string) ([]byte, error) {
	return NewData(motd).Marshal()
}
