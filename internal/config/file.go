package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// ConfigBaseName is the base name of the optional config file looked up by
// Discover. Supported extensions are listed in configCandidates.
const ConfigBaseName = "rayserve-image"

// configCandidates are the file names Discover checks, in priority order.
var configCandidates = []string{
	ConfigBaseName + ".yaml",
	ConfigBaseName + ".yml",
	ConfigBaseName + ".jsonc",
	ConfigBaseName + ".json",
}

// Load reads a build config file and parses it into an Overlay.
//
// The format is chosen by extension:
//   - .yaml / .yml: parsed with gopkg.in/yaml.v3
//   - .json / .jsonc: comments and trailing commas are stripped with
//     github.com/tidwall/jsonc, then parsed with encoding/json
//
// Unknown keys are rejected so that a misspelled key (e.g. "vllmVerison")
// fails loudly instead of being ignored.
//
// Returns a CLIError with ExitConfigError if the file cannot be read or parsed.
func Load(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("failed to read config file %s", path),
			err,
		)
	}

	var overlay Overlay
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// A document with no content decodes to io.EOF; treat it as an empty overlay.
		if err := dec.Decode(&overlay); err != nil && !errors.Is(err, io.EOF) {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("failed to parse YAML config %s", path),
				err,
			)
		}
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&overlay); err != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("failed to parse JSON config %s", path),
				err,
			)
		}
	default:
		return nil, model.NewCLIError(
			model.ExitConfigError,
			fmt.Sprintf("unsupported config file extension %q (use .yaml, .yml, .json or .jsonc)", ext),
		)
	}

	return &overlay, nil
}

// Discover looks for a config file in dir and returns its path. The second
// return value is false when no candidate exists; a missing config file is
// not an error because every value has a default.
func Discover(dir string) (string, bool) {
	for _, name := range configCandidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}
