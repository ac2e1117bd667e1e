package loader

import (
	"errors"

	"github.com/pelletier/go-toml/v2"
)

type tomlCodec struct{}

func (tomlCodec) Decode(data []byte) (map[string]any, error) {
	var settings map[string]any
	if err := toml.Unmarshal(data, &settings); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			line, col := derr.Position()
			return nil, &ParseError{Line: line, Column: col, Message: derr.Error(), Err: err}
		}
		return nil, err
	}
	return settings, nil
}

func (tomlCodec) Encode(settings map[string]any) ([]byte, error) {
	return toml.Marshal(settings)
}
