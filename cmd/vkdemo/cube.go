package main

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"
	"unsafe"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/heyallnorahere/code-playground-sub000/vulkan"
	"github.com/pkg/errors"
	lin "github.com/xlab/linmath"
	_ "golang.org/x/image/bmp"
)

type Vertex struct {
	Pos   lin.Vec3
	Color lin.Vec3
	UV    lin.Vec2
}

var vertexLayout = gfx.NewVertexLayout(gfx.Float3, gfx.Float3, gfx.Float2)

type UBO struct {
	Model lin.Mat4x4
	View  lin.Mat4x4
	Proj  lin.Mat4x4
}

func (u *UBO) Bytes() []byte {
	return gfx.ToBytes(unsafe.Pointer(u), int(unsafe.Sizeof(*u)))
}

var cubeVertices = []Vertex{
	{Pos: lin.Vec3{0.5, 0.5, -0.5}, Color: lin.Vec3{0, 0, 1}, UV: lin.Vec2{1, 1}},
	{Pos: lin.Vec3{0.5, -0.5, -0.5}, Color: lin.Vec3{0, 1, 0}, UV: lin.Vec2{1, 0}},
	{Pos: lin.Vec3{0.5, -0.5, 0.5}, Color: lin.Vec3{1, 0, 0}, UV: lin.Vec2{0, 0}},
	{Pos: lin.Vec3{0.5, 0.5, 0.5}, Color: lin.Vec3{0, 1, 1}, UV: lin.Vec2{0, 1}},

	{Pos: lin.Vec3{-0.5, 0.5, 0.5}, Color: lin.Vec3{0, 1, 1}, UV: lin.Vec2{1, 1}},
	{Pos: lin.Vec3{-0.5, -0.5, 0.5}, Color: lin.Vec3{1, 1, 1}, UV: lin.Vec2{1, 0}},
	{Pos: lin.Vec3{-0.5, -0.5, -0.5}, Color: lin.Vec3{1, 0, 1}, UV: lin.Vec2{0, 0}},
	{Pos: lin.Vec3{-0.5, 0.5, -0.5}, Color: lin.Vec3{1, 1, 1}, UV: lin.Vec2{0, 1}},
}

var cubeIndices = gfx.IndexSliceUint16{
	2, 1, 0, 3, 2, 0,
	4, 3, 0, 7, 4, 0,
	5, 2, 3, 4, 5, 3,
	5, 7, 6, 7, 5, 4,
	1, 2, 5, 1, 5, 6,
	0, 1, 6, 0, 6, 3,
}

// Cube draws a spinning cube with shaders loaded from SPIR-V files. The vertex shader
// reads the matrices from "ubo" at set 0 binding 0. With a texture the fragment shader
// samples "tex" at set 0 binding 1.
type Cube struct {
	Pipeline *vulkan.Pipeline
	Vertices *vulkan.Buffer
	Indices  *vulkan.Buffer
	Uniform  *vulkan.Buffer
	Texture  *vulkan.Image

	ubo   UBO
	start time.Time
}

func loadTexture(d *vulkan.Device, path string) (*vulkan.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return d.CreateTexture(img, nil)
}

func NewCube(d *vulkan.Device, target gfx.IRenderTarget, vertPath, fragPath, texturePath string) (*Cube, error) {
	c := &Cube{start: time.Now()}
	if err := c.create(d, target, vertPath, fragPath, texturePath); err != nil {
		c.Destroy()
		return nil, err
	}
	return c, nil
}

func (c *Cube) create(d *vulkan.Device, target gfx.IRenderTarget, vertPath, fragPath, texturePath string) error {
	vert, err := os.ReadFile(vertPath)
	if err != nil {
		return err
	}
	frag, err := os.ReadFile(fragPath)
	if err != nil {
		return err
	}

	var fragResources []gfx.ShaderResource
	if texturePath != "" {
		if c.Texture, err = loadTexture(d, texturePath); err != nil {
			return err
		}
		fragResources = append(fragResources, gfx.ShaderResource{Name: "tex", Set: 0, Binding: 1, Kind: gfx.CombinedImage})
	}

	c.Pipeline, err = d.CreatePipeline(gfx.PipelineDescription{
		RenderTarget: target,
		Type:         gfx.Graphics,
		FrameCount:   target.Frames(),
		DepthTesting: true,
		Vertex:       vertexLayout,
	})
	if err != nil {
		return err
	}
	err = c.Pipeline.Load(
		gfx.NewShader(gfx.VertexStage, "main", vert, gfx.ShaderResource{Name: "ubo", Set: 0, Binding: 0, Kind: gfx.UniformBuffer}),
		gfx.NewShader(gfx.FragmentStage, "main", frag, fragResources...),
	)
	if err != nil {
		return err
	}

	vertexData := gfx.SliceBytes(cubeVertices)
	if c.Vertices, err = d.CreateBuffer(gfx.Vertex, uint64(len(vertexData))); err != nil {
		return err
	}
	if err := d.UploadBuffer(c.Vertices, vertexData, 0); err != nil {
		return err
	}
	if c.Indices, err = d.CreateBuffer(gfx.Index, uint64(len(cubeIndices.Bytes()))); err != nil {
		return err
	}
	if err := d.UploadBuffer(c.Indices, cubeIndices.Bytes(), 0); err != nil {
		return err
	}
	if c.Uniform, err = d.CreateBuffer(gfx.Uniform, uint64(len(c.ubo.Bytes()))); err != nil {
		return err
	}

	if _, err := c.Pipeline.Bind(c.Uniform, "ubo", 0); err != nil {
		return err
	}
	if c.Texture != nil {
		if _, err := c.Pipeline.Bind(c.Texture, "tex", 0); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cube) update(width, height int) error {
	var m lin.Mat4x4
	m.Identity()
	angle := float32(time.Since(c.start).Seconds())
	c.ubo.Model.Rotate(&m, 0, 0, 1, angle)
	c.ubo.View.LookAt(&lin.Vec3{2, 2, 2}, &lin.Vec3{0, 0, 0}, &lin.Vec3{0, 0, 1})
	c.ubo.Proj.Perspective(lin.DegreesToRadians(45), float32(width)/float32(height), 0.1, 10)
	// clip space y points down
	c.ubo.Proj[1][1] *= -1
	return c.Uniform.CopyFromCPU(c.ubo.Bytes(), 0)
}

// Draw records the cube into cmd, which must be inside the render pass of the target.
func (c *Cube) Draw(cmd *vulkan.CommandBuffer, frame, width, height int) error {
	if err := c.update(width, height); err != nil {
		return err
	}
	if err := c.Pipeline.Use(cmd, frame); err != nil {
		return err
	}
	c.Vertices.BindVertices(cmd, 0, 0)
	if err := c.Indices.BindIndices(cmd, cubeIndices.IndexType(), 0); err != nil {
		return err
	}
	cmd.DrawIndexed(cubeIndices.Len(), 1, 0, 0)
	return nil
}

func (c *Cube) Destroy() {
	if c.Pipeline != nil {
		c.Pipeline.Destroy()
	}
	for _, b := range []*vulkan.Buffer{c.Vertices, c.Indices, c.Uniform} {
		if b != nil {
			b.Destroy()
		}
	}
	if c.Texture != nil {
		c.Texture.Destroy()
	}
}
