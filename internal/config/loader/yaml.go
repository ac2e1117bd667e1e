package loader

import (
	"errors"

	"gopkg.in/yaml.v3"
)

type yamlCodec struct{}

func (yamlCodec) Decode(data []byte) (map[string]any, error) {
	var settings map[string]any
	if err := yaml.Unmarshal(data, &settings); err != nil {
		var terr *yaml.TypeError
		if errors.As(err, &terr) {
			return nil, &ParseError{Message: "settings must be a mapping", Err: err}
		}
		return nil, err
	}
	return settings, nil
}

func (yamlCodec) Encode(settings map[string]any) ([]byte, error) {
	return yaml.Marshal(settings)
}
