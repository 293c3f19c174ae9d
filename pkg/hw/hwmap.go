// Package hw loads the installation's hardware map and opens the serial
// boards it describes.
//
// The map is a JSON or YAML array. Each entry names one board:
//
//	- type: light            # light | motor | radar
//	  board_name: ALPHA      # the name the board answers to NAME
//	  mapping: {A1: 0, A2: 1}
//	- type: motor
//	  board_name: BRAVO
//	  address: B1
//	  port: /dev/ttyUSB3     # optional, skips discovery
package hw

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Board types.
const (
	TypeLight = "light"
	TypeMotor = "motor"
	TypeRadar = "radar"
)

// DefaultBaud is the baud rate every lightwall board speaks.
const DefaultBaud = 115200

var (
	ErrNoEntries = errors.New("hw: hardware map has no entries")
	ErrNoBoard   = errors.New("hw: board not found")
)

// Entry describes one board in the hardware map.
type Entry struct {
	Type      string         `yaml:"type" json:"type"`
	BoardName string         `yaml:"board_name" json:"board_name"`
	Mapping   map[string]int `yaml:"mapping,omitempty" json:"mapping,omitempty"`
	Address   string         `yaml:"address,omitempty" json:"address,omitempty"`
	Port      string         `yaml:"port,omitempty" json:"port,omitempty"`
	Baud      int            `yaml:"baud,omitempty" json:"baud,omitempty"`
}

// BaudRate returns the entry's baud rate or DefaultBaud.
func (e Entry) BaudRate() int {
	if e.Baud > 0 {
		return e.Baud
	}
	return DefaultBaud
}

// Map is the parsed hardware map.
type Map []Entry

// MapError reports an invalid hardware map entry.
type MapError struct {
	Index   int
	Board   string
	Message string
}

func (e *MapError) Error() string {
	if e.Board != "" {
		return fmt.Sprintf("hw: entry %d (%s): %s", e.Index, e.Board, e.Message)
	}
	return fmt.Sprintf("hw: entry %d: %s", e.Index, e.Message)
}

// LoadMap reads a hardware map from path.
func LoadMap(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hw: read hardware map: %w", err)
	}
	return ParseMap(data)
}

// ParseMap decodes a JSON or YAML hardware map and validates it.
func ParseMap(data []byte) (Map, error) {
	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("hw: parse hardware map: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks every entry and rejects duplicate board names or addresses.
func (m Map) Validate() error {
	if len(m) == 0 {
		return ErrNoEntries
	}

	boards := make(map[string]bool)
	addrs := make(map[string]string)

	claim := func(i int, board, addr string) error {
		if other, dup := addrs[addr]; dup {
			return &MapError{Index: i, Board: board, Message: fmt.Sprintf("address %s already used by %s", addr, other)}
		}
		addrs[addr] = board
		return nil
	}

	radars := 0
	for i, e := range m {
		if e.BoardName == "" {
			return &MapError{Index: i, Message: "missing board_name"}
		}
		if boards[e.BoardName] {
			return &MapError{Index: i, Board: e.BoardName, Message: "duplicate board_name"}
		}
		boards[e.BoardName] = true

		switch e.Type {
		case TypeLight:
			if len(e.Mapping) == 0 {
				return &MapError{Index: i, Board: e.BoardName, Message: "light board needs a mapping"}
			}
			for addr, idx := range e.Mapping {
				if idx < 0 {
					return &MapError{Index: i, Board: e.BoardName, Message: fmt.Sprintf("negative index for %s", addr)}
				}
				if err := claim(i, e.BoardName, addr); err != nil {
					return err
				}
			}
		case TypeMotor:
			if e.Address == "" {
				return &MapError{Index: i, Board: e.BoardName, Message: "motor board needs an address"}
			}
			if err := claim(i, e.BoardName, e.Address); err != nil {
				return err
			}
		case TypeRadar:
			radars++
			if radars > 1 {
				return &MapError{Index: i, Board: e.BoardName, Message: "only one radar board is supported"}
			}
		default:
			return &MapError{Index: i, Board: e.BoardName, Message: fmt.Sprintf("unknown type %q", e.Type)}
		}
	}
	return nil
}

// Find returns the entry for a board name.
func (m Map) Find(boardName string) (Entry, bool) {
	for _, e := range m {
		if e.BoardName == boardName {
			return e, true
		}
	}
	return Entry{}, false
}

// OfType returns the entries of one board type in map order.
func (m Map) OfType(typ string) []Entry {
	var out []Entry
	for _, e := range m {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// LightAddresses returns every mapped LED address, sorted.
func (m Map) LightAddresses() []string {
	var out []string
	for _, e := range m.OfType(TypeLight) {
		for addr := range e.Mapping {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}

// MotorAddresses returns every motor address, sorted.
func (m Map) MotorAddresses() []string {
	var out []string
	for _, e := range m.OfType(TypeMotor) {
		out = append(out, e.Address)
	}
	sort.Strings(out)
	return out
}
