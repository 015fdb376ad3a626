package session

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gosimple/slug"

	"github.com/CK6170/gravtie-go/models"
)

// LoadTie reads a tie file. Keys missing from the file keep their unset
// values, so partially entered ties can be resumed.
func LoadTie(path string) (models.Tie, error) {
	t := models.NewTie()
	md, err := toml.DecodeFile(path, &t)
	if err != nil {
		return models.Tie{}, fmt.Errorf("read tie %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return models.Tie{}, fmt.Errorf("read tie %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	t.Normalize()
	return t, nil
}

// EncodeTie writes t as TOML.
func EncodeTie(w io.Writer, t models.Tie) error {
	if err := toml.NewEncoder(w).Encode(t); err != nil {
		return fmt.Errorf("encode tie: %w", err)
	}
	return nil
}

func SaveTie(path string, t models.Tie) error {
	var buf bytes.Buffer
	if err := EncodeTie(&buf, t); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Save writes the session's tie.
func (s *Session) Save(path string) error { return SaveTie(path, s.Tie()) }

func baseName(ship string, now time.Time) string {
	name := slug.Make(ship)
	if name == "" {
		name = "tie"
	}
	return name + "_" + now.Format("20060102")
}

// DefaultTiePath names a tie file after the ship and the UTC date.
func DefaultTiePath(dir, ship string, now time.Time) string {
	return filepath.Join(dir, baseName(ship, now.UTC())+".toml")
}

// DefaultReportPath is DefaultTiePath with a .txt extension.
func DefaultReportPath(dir, ship string, now time.Time) string {
	return filepath.Join(dir, baseName(ship, now.UTC())+".txt")
}
