// Command vkdemo opens a window and clears it every frame. Given SPIR-V shaders it also
// draws a spinning cube, optionally textured.
package main

import (
	"flag"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/heyallnorahere/code-playground-sub000/vulkan"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"
)

var (
	width      = flag.Int("width", 800, "window width")
	height     = flag.Int("height", 600, "window height")
	vsync      = flag.Bool("vsync", true, "wait for vertical blank")
	validation = flag.Bool("validation", false, "enable the validation layer")
	device     = flag.String("device", "", "physical device name")
	vertPath   = flag.String("vert", "", "vertex shader SPIR-V")
	fragPath   = flag.String("frag", "", "fragment shader SPIR-V")
	texture    = flag.String("texture", "", "texture for the cube (png, jpeg or bmp)")
	verbose    = flag.Bool("v", false, "debug logging")
)

func init() {
	runtime.LockOSThread()
}

type demo struct {
	log       *slog.Logger
	window    *glfw.Window
	context   *vulkan.Context
	swapchain *vulkan.Swapchain
	cube      *Cube
	start     time.Time
}

func (d *demo) init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "init glfw")
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(*width, *height, "vkdemo", nil, nil)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	d.window = window

	loader := vulkan.NewLoader(glfw.GetVulkanGetInstanceProcAddress())
	d.context, err = loader.Open(vulkan.ContextOptions{
		ApplicationName: "vkdemo",
		Version:         vulkan.Version{Major: 1},
		Extensions:      vulkan.Require(window.GetRequiredInstanceExtensions()...),
		Validation:      *validation,
		Device:          *device,
		Logger:          d.log,
		Surface: func(instance vk.Instance) (vk.Surface, error) {
			ptr, err := window.CreateWindowSurface(instance, nil)
			if err != nil {
				return nil, err
			}
			return vk.SurfaceFromPointer(ptr), nil
		},
	})
	if err != nil {
		return err
	}

	w, h := window.GetFramebufferSize()
	d.swapchain, err = d.context.Device.CreateSwapchain(d.context.Surface, vulkan.SwapchainOptions{
		Width:  w,
		Height: h,
		VSync:  *vsync,
		Depth:  true,
	})
	if err != nil {
		return err
	}
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		d.swapchain.Resize(width, height)
	})

	if *vertPath != "" && *fragPath != "" {
		d.cube, err = NewCube(d.context.Device, d.swapchain, *vertPath, *fragPath, *texture)
		if err != nil {
			return err
		}
	}
	d.start = time.Now()
	return nil
}

// waitForArea blocks while the window is minimized and rebuilds the swapchain afterwards.
func (d *demo) waitForArea() error {
	for {
		w, h := d.window.GetFramebufferSize()
		if w > 0 && h > 0 {
			break
		}
		if d.window.ShouldClose() {
			return nil
		}
		glfw.WaitEvents()
	}
	return d.swapchain.Invalidate()
}

func (d *demo) clearColor() vulkan.ClearValues {
	t := time.Since(d.start).Seconds()
	values := vulkan.DefaultClear
	values.Color = [4]float32{
		float32(0.5 + 0.5*math.Sin(t)),
		float32(0.5 + 0.5*math.Sin(t+2)),
		float32(0.5 + 0.5*math.Sin(t+4)),
		1,
	}
	return values
}

func (d *demo) frame() error {
	s := d.swapchain
	if err := s.AcquireImage(); err != nil {
		return err
	}
	cmd, err := d.context.Device.Graphics.Release()
	if err != nil {
		return err
	}
	if err := cmd.Begin(); err != nil {
		return err
	}
	cmd.Checkpoint("clear")
	if err := cmd.BeginRenderPass(s, d.clearColor()); err != nil {
		return err
	}
	if d.cube != nil {
		cmd.Checkpoint("cube")
		if err := d.cube.Draw(cmd, s.CurrentFrame(), s.Width(), s.Height()); err != nil {
			return err
		}
	}
	cmd.EndRenderPass()
	return s.Present(cmd)
}

func (d *demo) run() error {
	for !d.window.ShouldClose() {
		glfw.PollEvents()
		err := d.frame()
		if w, h := d.window.GetFramebufferSize(); errors.Is(err, gfx.ErrContract) && (w == 0 || h == 0) {
			// minimized while rebuilding
			err = d.waitForArea()
		}
		if err != nil {
			return err
		}
	}
	return d.context.Device.WaitIdle()
}

func (d *demo) destroy() {
	if d.cube != nil {
		d.cube.Destroy()
	}
	if d.swapchain != nil {
		d.swapchain.Destroy()
	}
	if d.context != nil {
		d.context.Close()
	}
	if d.window != nil {
		d.window.Destroy()
	}
	glfw.Terminate()
}

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	d := &demo{log: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
	err := d.init()
	if err == nil {
		err = d.run()
	}
	d.destroy()
	if err != nil {
		d.log.Error("vkdemo failed", "err", err)
		os.Exit(1)
	}
}
