package graph

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
)

// presetFile is the on-disk TOML shape of a routing preset.
//
//	name = "wide-hall"
//	bypass = ["tremble"]
//
//	[[connection]]
//	source = "drive"
//	destination = "diffuser"
//	mode = "series"
type presetFile struct {
	Name        string           `toml:"name"`
	Bypass      []string         `toml:"bypass"`
	Connections []connectionFile `toml:"connection"`
}

// Optional numeric fields are pointers so an absent key keeps the
// connection default instead of forcing zero.
type connectionFile struct {
	Source       string   `toml:"source"`
	Destination  string   `toml:"destination"`
	Mode         string   `toml:"mode"`
	Blend        *float64 `toml:"blend"`
	FeedbackGain *float64 `toml:"feedback_gain"`
	Crossfeed    *float64 `toml:"crossfeed"`
	Disabled     bool     `toml:"disabled"`
}

// LoadPresetFile reads a TOML routing preset from path and publishes it.
// On any error the active routing is left untouched.
func (g *Graph) LoadPresetFile(path string) error {
	var raw presetFile

	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("load preset file: %w", err)
	}

	return g.applyPresetFile(raw)
}

// ReadPreset decodes a TOML routing preset from r and publishes it.
func (g *Graph) ReadPreset(r io.Reader) error {
	var raw presetFile

	if _, err := toml.NewDecoder(r).Decode(&raw); err != nil {
		return fmt.Errorf("decode preset: %w", err)
	}

	return g.applyPresetFile(raw)
}

func (g *Graph) applyPresetFile(raw presetFile) error {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = "custom"
	}

	connections := make([]Connection, 0, len(raw.Connections))
	for i, cf := range raw.Connections {
		conn, err := parseConnection(i, cf)
		if err != nil {
			return err
		}

		connections = append(connections, conn)
	}

	bypassed := make(map[ModuleID]bool, len(raw.Bypass))
	for _, moduleName := range raw.Bypass {
		id, ok := ModuleIDByName(strings.TrimSpace(moduleName))
		if !ok {
			return fmt.Errorf("%w: bypass %q", ErrUnknownModule, moduleName)
		}

		bypassed[id] = true
	}

	if err := g.SetRouting(name, connections, bypassed); err != nil {
		return err
	}

	g.log.Info().
		Str("preset", name).
		Int("connections", len(connections)).
		Msg("routing preset loaded")

	return nil
}

func parseConnection(index int, cf connectionFile) (Connection, error) {
	src, ok := ModuleIDByName(strings.TrimSpace(cf.Source))
	if !ok {
		return Connection{}, fmt.Errorf("%w: connection %d source %q", ErrUnknownModule, index, cf.Source)
	}

	dst, ok := ModuleIDByName(strings.TrimSpace(cf.Destination))
	if !ok {
		return Connection{}, fmt.Errorf("%w: connection %d destination %q", ErrUnknownModule, index, cf.Destination)
	}

	mode := ModeSeries
	if strings.TrimSpace(cf.Mode) != "" {
		mode, ok = ModeByName(strings.TrimSpace(cf.Mode))
		if !ok {
			return Connection{}, fmt.Errorf("graph: connection %d unknown mode %q", index, cf.Mode)
		}
	}

	conn := NewConnection(src, dst, mode)
	conn.Enabled = !cf.Disabled

	if cf.Blend != nil {
		conn.Blend = *cf.Blend
	}

	if cf.FeedbackGain != nil {
		conn.FeedbackGain = *cf.FeedbackGain
	}

	if cf.Crossfeed != nil {
		conn.Crossfeed = *cf.Crossfeed
	}

	return conn, nil
}
