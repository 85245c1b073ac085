package imagegen

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Variant policies
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// Variant is one independently requested image for a directive.
// Zero-valued knobs are left out of the request.
type Variant struct {
	Name    string            `yaml:"name"`
	Width   int               `yaml:"width,omitempty"`
	Height  int               `yaml:"height,omitempty"`
	Steps   int               `yaml:"steps,omitempty"`
	Model   string            `yaml:"model,omitempty"`
	Safe    *bool             `yaml:"safe,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// query returns the request parameters for v with the given seed
func (v Variant) query(seed int64) url.Values {
	q := url.Values{}
	q.Set("nologo", "true")
	q.Set("seed", strconv.FormatInt(seed, 10))
	if v.Width > 0 {
		q.Set("width", strconv.Itoa(v.Width))
	}
	if v.Height > 0 {
		q.Set("height", strconv.Itoa(v.Height))
	}
	if v.Steps > 0 {
		q.Set("steps", strconv.Itoa(v.Steps))
	}
	if v.Model != "" {
		q.Set("model", v.Model)
	}
	if v.Safe != nil {
		q.Set("safe", strconv.FormatBool(*v.Safe))
	}
	return q
}

// SingleVariants is the single-variant policy: one plain request
func SingleVariants() []Variant {
	return []Variant{{Name: "default"}}
}

// MultiVariants is the multi-variant policy. Each variant uses different size knobs and
// identifies itself with different client headers, so the image service doesn't treat the
// pair as duplicate traffic.
func MultiVariants() []Variant {
	safe := true
	return []Variant{
		{
			Name:   "square",
			Width:  1024,
			Height: 1024,
			Steps:  4,
			Headers: map[string]string{
				"User-Agent":    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
				"Accept":        "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
				"Cache-Control": "no-cache",
			},
		},
		{
			Name:   "wide",
			Width:  1280,
			Height: 720,
			Steps:  8,
			Safe:   &safe,
			Headers: map[string]string{
				"User-Agent":    "Mozilla/5.0 (Macintosh; Intel Mac OS X 14.6; rv:131.0) Gecko/20100101 Firefox/131.0",
				"Accept":        "image/webp,*/*",
				"Cache-Control": "max-age=0",
			},
		},
	}
}

// VariantsForMode returns the built-in variants for mode
func VariantsForMode(mode string) ([]Variant, error) {
	switch mode {
	case ModeSingle:
		return SingleVariants(), nil
	case ModeMulti:
		return MultiVariants(), nil
	}
	return nil, fmt.Errorf("unknown image mode %q", mode)
}

type variantsFile struct {
	Variants []Variant `yaml:"variants"`
}

// LoadVariants reads a variants list from a YAML file of the form:
//
//	variants:
//	  - name: square
//	    width: 1024
//	    height: 1024
//	    headers:
//	      User-Agent: example/1.0
func LoadVariants(path string) ([]Variant, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read variants file: %w", err)
	}

	var f variantsFile
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("could not parse variants file: %w", err)
	}

	if len(f.Variants) == 0 {
		return nil, errors.New("variants file lists no variants")
	}

	for i := range f.Variants {
		if f.Variants[i].Name == "" {
			f.Variants[i].Name = "variant-" + strconv.Itoa(i+1)
		}
	}

	return f.Variants, nil
}
