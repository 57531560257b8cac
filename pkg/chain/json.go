package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// DecodeJSON unmarshals data into v, keeping numbers held in interface
// values as json.Number. The original number text survives a round trip,
// so integers beyond float64 precision are not rounded. Anything after the
// top-level value is an error.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after top-level value")
	}
	return nil
}
