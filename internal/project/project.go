// Package project loads and saves arrangements as YAML files.
package project

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/arrange-go/internal/model"
)

// Decode reads an arrangement and fills in defaults for omitted fields.
func Decode(r io.Reader) (model.Arrangement, error) {
	var arr model.Arrangement
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&arr); err != nil && err != io.EOF {
		return model.Arrangement{}, fmt.Errorf("decode project: %w", err)
	}
	applyDefaults(&arr)
	if err := arr.Validate(); err != nil {
		return model.Arrangement{}, fmt.Errorf("invalid project: %w", err)
	}
	return arr, nil
}

func applyDefaults(arr *model.Arrangement) {
	if arr.TotalBars == 0 {
		arr.TotalBars = model.DefaultTotalBars
	}
	if arr.BPM == 0 {
		arr.BPM = 120
	}
	if arr.StepsPerPattern == 0 {
		arr.StepsPerPattern = model.DefaultStepsPerPattern
	}
	if arr.MasterVolume == 0 {
		arr.MasterVolume = 1
	}
}

// Encode writes arr as YAML.
func Encode(w io.Writer, arr model.Arrangement) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(arr); err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	return enc.Close()
}

// Load reads a project file.
func Load(path string) (model.Arrangement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Arrangement{}, err
	}
	return Decode(bytes.NewReader(data))
}

// Save writes a project file, replacing it atomically.
func Save(path string, arr model.Arrangement) error {
	var buf bytes.Buffer
	if err := Encode(&buf, arr); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
