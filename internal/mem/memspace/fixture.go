package memspace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/memsync/internal/mem"
)

// Fixture describes a space snapshot: mapped regions plus typed values.
//
//	regions:
//	  - base: 0x10000
//	    size: 0x2000
//	values:
//	  - addr: 0x10010
//	    type: ptr
//	    value: 0x11000
type Fixture struct {
	Regions []FixtureRegion `yaml:"regions"`
	Values  []FixtureValue  `yaml:"values"`
}

// FixtureRegion is a mapped range.
type FixtureRegion struct {
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

// FixtureValue is one typed value placed in a mapped region.
// Type is one of: ptr, u64, i32, u32, f32, bool, vec3, mat4.
type FixtureValue struct {
	Addr   uint64    `yaml:"addr"`
	Type   string    `yaml:"type"`
	Value  float64   `yaml:"value"`
	Values []float32 `yaml:"values"`
}

// LoadFixture reads a YAML fixture file into a new Space.
func LoadFixture(path string) (*Space, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	s := New()
	if err := s.Apply(fx); err != nil {
		return nil, fmt.Errorf("applying fixture %s: %w", path, err)
	}
	return s, nil
}

// Apply maps the fixture regions and stores its values.
func (s *Space) Apply(fx Fixture) error {
	for _, r := range fx.Regions {
		s.Map(mem.Address(r.Base), r.Size)
	}
	for _, v := range fx.Values {
		if err := s.putFixtureValue(v); err != nil {
			return fmt.Errorf("value at 0x%X: %w", v.Addr, err)
		}
	}
	return nil
}

func (s *Space) putFixtureValue(v FixtureValue) error {
	addr := mem.Address(v.Addr)
	switch v.Type {
	case "ptr", "u64":
		return Put(s, addr, uint64(v.Value))
	case "i32":
		return Put(s, addr, int32(v.Value))
	case "u32":
		return Put(s, addr, uint32(v.Value))
	case "f32":
		return Put(s, addr, float32(v.Value))
	case "bool":
		return Put(s, addr, v.Value != 0)
	case "vec3", "mat4":
		want := 3
		if v.Type == "mat4" {
			want = 16
		}
		if len(v.Values) != want {
			return fmt.Errorf("%s needs %d values, got %d", v.Type, want, len(v.Values))
		}
		return Put(s, addr, v.Values)
	default:
		return fmt.Errorf("unknown value type %q", v.Type)
	}
}
