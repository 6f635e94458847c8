package cms

import "sketchkit.dev/sketchkit/persist"

// Save serializes s and writes it to path.
func (s *Sketch) Save(path string, opts ...persist.Option) error {
	return persist.Save(path, s.Serialize(), opts...)
}

// LoadFile reads a Sketch previously written with Save.
func LoadFile(path string) (*Sketch, error) {
	data, err := persist.Load(path)
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}
