package shortcuts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
	"golang.org/x/text/unicode/norm"
)

//go:embed default.json
var defaultTable []byte

//go:embed schema.json
var schemaDoc []byte

const schemaURL = "https://unilang.local/schema/shortcuts-v1.schema.json"

// commentKey marks documentation entries that are skipped while loading.
const commentKey = "_comment"

// ErrInvalidTable is returned when a document does not describe a table.
var ErrInvalidTable = errors.New("invalid shortcut table")

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(schemaURL)
})

var loadDefault = sync.OnceValues(func() (*Table, error) {
	return Parse(defaultTable)
})

// Default returns the built-in table.
func Default() (*Table, error) {
	return loadDefault()
}

// Parse decodes and validates a table document.
func Parse(data []byte) (*Table, error) {
	doc := jsonc.ToJSON(data)
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidTable)
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}

	b := newBuilder()
	gjson.GetBytes(doc, "shortcuts").ForEach(func(cat, group gjson.Result) bool {
		if cat.String() == commentKey || !group.IsObject() {
			return true
		}
		group.ForEach(func(trigger, repl gjson.Result) bool {
			if trigger.String() == commentKey {
				return true
			}
			b.add(cat.String(), trigger.String(), norm.NFC.String(repl.String()))
			return true
		})
		return true
	})
	return b.build(), nil
}

// Validate checks a comment-free document against the table schema.
func Validate(doc []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return nil
}

// LoadFile parses the table stored at path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shortcuts: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Load returns the built-in table merged with the overlay at path. A missing
// overlay file is not an error.
func Load(path string) (*Table, error) {
	base, err := Default()
	if err != nil {
		return nil, fmt.Errorf("built-in shortcuts: %w", err)
	}
	if path == "" {
		return base, nil
	}
	overlay, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return nil, err
	}
	return Merge(base, overlay), nil
}
