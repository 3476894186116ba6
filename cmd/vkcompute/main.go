// Command vkcompute runs a compute shader over a storage buffer of RGBA float pixels on a
// headless context and writes the result as a PNG. The shader sees the buffer as
// "pixels" at set 0 binding 0 and the image size as two uint32 push constants.
package main

import (
	"encoding/binary"
	"flag"
	"image"
	"image/color"
	"image/png"
	"os"
	"unsafe"

	units "github.com/docker/go-units"
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/heyallnorahere/code-playground-sub000/vulkan"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

var (
	shaderPath    = flag.String("shader", "shaders/comp.spv", "compute shader SPIR-V")
	outPath       = flag.String("out", "out.png", "output image")
	width         = flag.Int("width", 3200, "image width")
	height        = flag.Int("height", 2400, "image height")
	workgroupSize = flag.Int("workgroup", 32, "local size of the shader in x and y")
	validation    = flag.Bool("validation", false, "enable the validation layer")
	verbose       = flag.Bool("v", false, "debug logging")
)

type Pixel struct {
	R, G, B, A float32
}

func clamp(f float32) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 255
	}
	return uint8(f * 255)
}

func toImage(pixels []Pixel, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := pixels[y*w+x]
			out.SetRGBA(x, y, color.RGBA{clamp(p.R), clamp(p.G), clamp(p.B), clamp(p.A)})
		}
	}
	return out
}

func groups(size, local int) int {
	return (size + local - 1) / local
}

func run(log *slog.Logger) error {
	code, err := os.ReadFile(*shaderPath)
	if err != nil {
		return err
	}

	c, err := vulkan.NewLoader(nil).Open(vulkan.ContextOptions{
		ApplicationName: "vkcompute",
		Validation:      *validation,
		Logger:          log,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	d := c.Device

	pixelCount := *width * *height
	size := uint64(pixelCount) * uint64(unsafe.Sizeof(Pixel{}))
	log.Info("allocating pixels", "size", units.BytesSize(float64(size)))
	pixels, err := d.CreateBuffer(gfx.Storage, size)
	if err != nil {
		return err
	}
	defer pixels.Destroy()

	pipeline, err := d.CreatePipeline(gfx.PipelineDescription{Type: gfx.Compute, PushConstantSize: 8})
	if err != nil {
		return err
	}
	defer pipeline.Destroy()
	err = pipeline.Load(gfx.NewShader(gfx.ComputeStage, "main", code,
		gfx.ShaderResource{Name: "pixels", Set: 0, Binding: 0, Kind: gfx.StorageBuffer}))
	if err != nil {
		return err
	}
	if ok, err := pipeline.Bind(pixels, "pixels", 0); err != nil {
		return err
	} else if !ok {
		return errors.New("shader does not declare pixels")
	}

	q, err := d.QueueFor(gfx.ComputeCapability)
	if err != nil {
		return err
	}
	profiler, err := d.CreateProfiler(1)
	if err != nil {
		log.Warn("dispatch will not be timed", "err", err)
	} else {
		defer profiler.Destroy()
	}

	cmd, err := q.Release()
	if err != nil {
		return err
	}
	if err := cmd.Begin(); err != nil {
		return err
	}
	cmd.Checkpoint("dispatch")
	timed := false
	if profiler != nil {
		profiler.Reset(cmd)
		if err := profiler.Begin(cmd, "dispatch"); err != nil {
			log.Warn("dispatch will not be timed", "err", err)
		} else {
			timed = true
		}
	}
	if err := pipeline.Use(cmd, 0); err != nil {
		return err
	}
	push := make([]byte, 8)
	binary.LittleEndian.PutUint32(push, uint32(*width))
	binary.LittleEndian.PutUint32(push[4:], uint32(*height))
	if err := cmd.PushConstants(pipeline, 0, push); err != nil {
		return err
	}
	if err := cmd.Dispatch(groups(*width, *workgroupSize), groups(*height, *workgroupSize), 1); err != nil {
		return err
	}
	if timed {
		profiler.End(cmd, "dispatch")
	}
	if err := q.Submit(cmd, vulkan.SubmitOptions{Wait: true}); err != nil {
		return err
	}

	if timed {
		samples, ready, err := profiler.Resolve()
		switch {
		case err != nil:
			log.Warn("reading timestamps", "err", err)
		case ready:
			log.Info("dispatch finished", "gpu", samples[0].Duration)
		}
	}

	data := make([]byte, size)
	if err := d.DownloadBuffer(pixels, data, 0); err != nil {
		return err
	}
	out := toImage(gfx.FromBytes[Pixel](data), *width, *height)

	f, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, out)
}

func main() {
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if err := run(log); err != nil {
		log.Error("vkcompute failed", "err", err)
		os.Exit(1)
	}
}
