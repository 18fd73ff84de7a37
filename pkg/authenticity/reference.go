package authenticity

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReferenceTable is the bundled table of known-good perceptual hashes keyed
// by (set, number). It is loaded once at startup and read-only afterwards.
type ReferenceTable struct {
	hashes map[string][]uint64
}

type referenceFile struct {
	Cards []struct {
		Set    string   `yaml:"set"`
		Number string   `yaml:"number"`
		Hashes []string `yaml:"hashes"` // 16-digit hex
	} `yaml:"cards"`
}

// LoadReferenceTable reads the YAML reference file. An empty path yields an
// empty table, which scores every card neutrally.
func LoadReferenceTable(path string) (*ReferenceTable, error) {
	t := &ReferenceTable{hashes: make(map[string][]uint64)}
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference table %s: %w", path, err)
	}
	var file referenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse reference table %s: %w", path, err)
	}

	for _, c := range file.Cards {
		key := referenceKey(c.Set, c.Number)
		if key == "" {
			return nil, fmt.Errorf("reference table %s: entry missing set or number", path)
		}
		for _, hs := range c.Hashes {
			h, err := strconv.ParseUint(strings.TrimPrefix(hs, "0x"), 16, 64)
			if err != nil {
				return nil, fmt.Errorf("reference table %s: bad hash %q for %s: %w", path, hs, key, err)
			}
			t.hashes[key] = append(t.hashes[key], h)
		}
	}
	return t, nil
}

// Lookup returns the reference hashes for a card, or nil when the card has no
// bundled references.
func (t *ReferenceTable) Lookup(set, number string) []uint64 {
	key := referenceKey(set, number)
	if key == "" {
		return nil
	}
	return t.hashes[key]
}

// Len reports the number of keyed cards, for startup logging.
func (t *ReferenceTable) Len() int { return len(t.hashes) }

func referenceKey(set, number string) string {
	set = strings.ToLower(strings.TrimSpace(set))
	number = strings.ToLower(strings.TrimSpace(number))
	if set == "" || number == "" {
		return ""
	}
	return set + "|" + number
}
