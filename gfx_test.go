package gfx

import (
	"testing"

	"github.com/pkg/errors"
)

func TestLayoutNames(t *testing.T) {
	seen := map[string]bool{}
	for _, l := range Layouts {
		n := l.String()
		if seen[n] {
			t.Errorf("duplicate layout name %s", n)
		}
		seen[n] = true
	}
	if CopyDestination.String() != "CopyDestination" {
		t.Errorf("unexpected name %s", CopyDestination)
	}
	if Layout(42).String() != "Layout(42)" {
		t.Errorf("unexpected name for unknown layout %s", Layout(42))
	}
}

func TestIndexSliceBytes(t *testing.T) {
	i16 := IndexSliceUint16{0, 1, 2}
	if len(i16.Bytes()) != 6 || i16.IndexType() != UInt16 {
		t.Errorf("uint16 indices: %d bytes", len(i16.Bytes()))
	}

	i32 := IndexSliceUint32{0, 1, 2}
	if len(i32.Bytes()) != 12 || i32.IndexType() != UInt32 {
		t.Errorf("uint32 indices: %d bytes", len(i32.Bytes()))
	}

	if (IndexSliceUint32{}).Bytes() != nil {
		t.Error("empty slice should have no bytes")
	}
}

func TestFromBytes(t *testing.T) {
	src := []uint32{1, 2, 3}
	back := FromBytes[uint32](SliceBytes(src))
	if len(back) != 3 || back[2] != 3 {
		t.Errorf("round trip gave %v", back)
	}
	if FromBytes[uint32](make([]byte, 7)) == nil || len(FromBytes[uint32](make([]byte, 7))) != 1 {
		t.Error("trailing bytes should be dropped")
	}
	if FromBytes[uint64]([]byte{1}) != nil {
		t.Error("short input should give nothing")
	}
}

func TestVertexLayout(t *testing.T) {
	l := NewVertexLayout(Float3, Float2, Float4)
	if l.Stride != 36 {
		t.Errorf("stride %d", l.Stride)
	}
	if l.Attributes[2].Offset != 20 || l.Attributes[2].Location != 2 {
		t.Errorf("attribute %+v", l.Attributes[2])
	}
}

func TestValidateStages(t *testing.T) {
	vs := NewShader(VertexStage, "", nil)
	fs := NewShader(FragmentStage, "", nil)
	cs := NewShader(ComputeStage, "", nil)

	graphics := PipelineDescription{Type: Graphics}
	if err := graphics.ValidateStages([]IShader{vs, fs}); err != nil {
		t.Error(err)
	}
	if err := graphics.ValidateStages([]IShader{vs}); !errors.Is(err, ErrCompilation) {
		t.Errorf("expected compilation error, got %v", err)
	}
	if err := graphics.ValidateStages([]IShader{vs, vs}); !errors.Is(err, ErrCompilation) {
		t.Errorf("expected compilation error, got %v", err)
	}

	compute := PipelineDescription{Type: Compute}
	if err := compute.ValidateStages([]IShader{cs}); err != nil {
		t.Error(err)
	}
	if err := compute.ValidateStages([]IShader{cs, fs}); !errors.Is(err, ErrCompilation) {
		t.Errorf("expected compilation error, got %v", err)
	}

	if vs.EntryPoint() != "main" {
		t.Errorf("default entry point %q", vs.EntryPoint())
	}
}

func TestCapabilityString(t *testing.T) {
	c := GraphicsCapability | TransferCapability
	if c.String() != "graphics|transfer" {
		t.Errorf("got %s", c)
	}
	if !c.Has(TransferCapability) || c.Has(ComputeCapability) {
		t.Error("Has is wrong")
	}
}
