package gfx

import (
	"github.com/pkg/errors"
)

// ResourceKind is the type of a shader resource slot.
type ResourceKind int

const (
	UniformBuffer ResourceKind = iota
	StorageBuffer
	// CombinedImage is a sampled image with its sampler
	CombinedImage
	StorageTexture
)

// ShaderResource is one reflected resource slot of a shader.
type ShaderResource struct {
	Name    string
	Set     int
	Binding int
	Kind    ResourceKind
	// Count is the array size, 0 and 1 both mean a single element
	Count int
}

// IShader is compiled shader code with its reflection data. It is produced by a shader
// compiler outside of this package.
type IShader interface {
	Stage() ShaderStage
	EntryPoint() string
	Bytecode() []byte
	Resources() []ShaderResource
}

// Shader is a plain IShader.
type Shader struct {
	stage      ShaderStage
	entryPoint string
	code       []byte
	resources  []ShaderResource
}

// NewShader returns a shader carrying code for stage. The entry point defaults to "main".
func NewShader(stage ShaderStage, entryPoint string, code []byte, resources ...ShaderResource) *Shader {
	if entryPoint == "" {
		entryPoint = "main"
	}
	return &Shader{stage: stage, entryPoint: entryPoint, code: code, resources: resources}
}

func (s *Shader) Stage() ShaderStage { return s.stage }
func (s *Shader) EntryPoint() string { return s.entryPoint }
func (s *Shader) Bytecode() []byte { return s.code }
func (s *Shader) Resources() []ShaderResource { return s.resources }

// VertexFormat is the type of one vertex attribute.
type VertexFormat int

const (
	Float VertexFormat = iota
	Float2
	Float3
	Float4
	UByte4Norm
)

// Size returns the attribute size in bytes.
func (f VertexFormat) Size() uint32 {
	switch f {
	case Float:
		return 4
	case Float2:
		return 8
	case Float3:
		return 12
	case Float4:
		return 16
	}
	return 4
}

type VertexAttribute struct {
	Location int
	Format   VertexFormat
	Offset   uint32
}

// VertexLayout describes one interleaved vertex stream.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// NewVertexLayout packs formats tightly at consecutive locations.
func NewVertexLayout(formats ...VertexFormat) VertexLayout {
	var l VertexLayout
	for i, f := range formats {
		l.Attributes = append(l.Attributes, VertexAttribute{Location: i, Format: f, Offset: l.Stride})
		l.Stride += f.Size()
	}
	return l
}

// PipelineDescription configures a pipeline before its shaders are loaded.
type PipelineDescription struct {
	// RenderTarget is required for graphics pipelines
	RenderTarget IRenderTarget
	Type         PipelineType
	// FrameCount is the number of descriptor set copies kept, one per frame in flight.
	// Zero means one.
	FrameCount     int
	BlendMode      BlendMode
	FrontFace      FrontFace
	Topology       Topology
	DepthTesting   bool
	DisableCulling bool
	Vertex         VertexLayout
	// PushConstantSize is the size in bytes of the push constant block visible to every
	// stage, 0 for none
	PushConstantSize uint32
}

// Frames returns FrameCount with the default applied.
func (p PipelineDescription) Frames() int {
	if p.FrameCount < 1 {
		return 1
	}
	return p.FrameCount
}

// ValidateStages checks that shaders form a valid combination for the pipeline type:
// graphics needs exactly a vertex and a fragment stage, compute exactly one compute stage.
func (p PipelineDescription) ValidateStages(shaders []IShader) error {
	count := map[ShaderStage]int{}
	for _, s := range shaders {
		if s == nil {
			return errors.Wrap(ErrCompilation, "nil shader")
		}
		count[s.Stage()]++
	}
	switch p.Type {
	case Graphics:
		if len(shaders) != 2 || count[VertexStage] != 1 || count[FragmentStage] != 1 {
			return errors.Wrapf(ErrCompilation, "graphics pipeline requires vertex and fragment stages, got %v", stageList(shaders))
		}
	case Compute:
		if len(shaders) != 1 || count[ComputeStage] != 1 {
			return errors.Wrapf(ErrCompilation, "compute pipeline requires a single compute stage, got %v", stageList(shaders))
		}
	default:
		return errors.Wrapf(ErrCompilation, "unknown pipeline type %d", p.Type)
	}
	return nil
}

func stageList(shaders []IShader) []ShaderStage {
	ret := make([]ShaderStage, 0, len(shaders))
	for _, s := range shaders {
		ret = append(ret, s.Stage())
	}
	return ret
}
