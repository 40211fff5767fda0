package world

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/splashmapping/splash/common"
)

// ErrConfig flags configuration-file parse or schema errors; they abort
// startup.
var ErrConfig = fmt.Errorf("world: configuration error")

// SceneSpec describes one Scene process in the configuration.
type SceneSpec struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Spawn   int    `json:"spawn,omitempty"`
	Display int    `json:"display,omitempty"`
}

// ObjectSpec holds one object definition: its type plus initial attribute
// values.
type ObjectSpec map[string]interface{}

// Type returns the object's factory type string.
func (o ObjectSpec) Type() string {
	t, _ := o["type"].(string)
	return t
}

// SceneDef holds the objects and links of one scene.
type SceneDef struct {
	Objects map[string]ObjectSpec `json:"objects"`
	Links   [][2]string           `json:"links"`
}

// Config is the parsed configuration document: world attributes, the
// ordered scene list, and one definition block per scene name.
type Config struct {
	World  map[string]interface{}
	Scenes []SceneSpec
	Defs   map[string]SceneDef

	objectOrder map[string][]string // per scene, definition order
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes a configuration document.
func ParseConfig(raw []byte) (*Config, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	cfg := &Config{
		World:       map[string]interface{}{},
		Defs:        map[string]SceneDef{},
		objectOrder: map[string][]string{},
	}

	if rawWorld, ok := top["world"]; ok {
		if err := json.Unmarshal(rawWorld, &cfg.World); err != nil {
			return nil, fmt.Errorf("%w: world block: %v", ErrConfig, err)
		}
	}

	rawScenes, ok := top["scenes"]
	if !ok {
		return nil, fmt.Errorf("%w: missing scenes list", ErrConfig)
	}
	if err := json.Unmarshal(rawScenes, &cfg.Scenes); err != nil {
		return nil, fmt.Errorf("%w: scenes list: %v", ErrConfig, err)
	}
	for _, spec := range cfg.Scenes {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: scene with no name", ErrConfig)
		}
	}

	for _, spec := range cfg.Scenes {
		rawDef, okDef := top[spec.Name]
		if !okDef {
			continue
		}
		var def SceneDef
		if err := json.Unmarshal(rawDef, &def); err != nil {
			return nil, fmt.Errorf("%w: scene %s: %v", ErrConfig, spec.Name, err)
		}
		cfg.Defs[spec.Name] = def

		// Preserve definition order for deterministic application.
		var ordered struct {
			Objects json.RawMessage `json:"objects"`
		}
		if err := json.Unmarshal(rawDef, &ordered); err == nil && ordered.Objects != nil {
			cfg.objectOrder[spec.Name] = objectKeysInOrder(ordered.Objects)
		}
	}
	return cfg, nil
}

// objectKeysInOrder extracts the object names in document order.
func objectKeysInOrder(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var keys []string
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case json.Delim:
			if t == '{' || t == '[' {
				depth++
			} else {
				depth--
			}
		case string:
			if depth == 1 {
				keys = append(keys, t)
				// Skip the value to stay on keys.
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					return keys
				}
			}
		}
	}
	return keys
}

// ObjectNames returns a scene's object names in definition order.
func (c *Config) ObjectNames(sceneName string) []string {
	if order, ok := c.objectOrder[sceneName]; ok && len(order) > 0 {
		return order
	}
	def := c.Defs[sceneName]
	out := make([]string, 0, len(def.Objects))
	for name := range def.Objects {
		out = append(out, name)
	}
	return out
}

// Save rewrites the configuration file. Number formatting follows the C
// locale (decimal point), which is Go's native formatting.
func (c *Config) Save(path string) error {
	doc := map[string]interface{}{
		"world":  c.World,
		"scenes": c.Scenes,
	}
	for name, def := range c.Defs {
		doc[name] = def
	}
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	raw = append(raw, '\n')
	return os.WriteFile(path, raw, 0o644)
}

// AttributeValues converts a decoded JSON value into wire Values:
// numbers keep their integer tag when integral, lists flatten into the
// sequence.
func AttributeValues(v interface{}) common.Values {
	switch typed := v.(type) {
	case nil:
		return common.Values{}
	case bool:
		return common.Values{common.B(typed)}
	case string:
		return common.Values{common.S(typed)}
	case float64:
		if typed == math.Trunc(typed) && math.Abs(typed) < 1e15 {
			return common.Values{common.I(int64(typed))}
		}
		return common.Values{common.R(typed)}
	case []interface{}:
		out := make(common.Values, 0, len(typed))
		for _, item := range typed {
			sub := AttributeValues(item)
			if len(sub) == 1 {
				out = append(out, sub[0])
			} else {
				out = append(out, common.Seq(sub))
			}
		}
		return out
	case map[string]interface{}:
		out := make(common.Values, 0, len(typed)*2)
		for key, item := range typed {
			sub := AttributeValues(item)
			out = append(out, common.S(key))
			if len(sub) == 1 {
				out = append(out, sub[0])
			} else {
				out = append(out, common.Seq(sub))
			}
		}
		return out
	default:
		return common.Values{}
	}
}
