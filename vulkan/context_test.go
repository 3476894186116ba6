package vulkan

import (
	"reflect"
	"testing"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

func TestResolveExtensions(t *testing.T) {
	available := []string{"a", "b", "c"}
	requested := []Extension{
		{Name: "c", Required: true},
		{Name: "missing"},
		{Name: "a"},
		{Name: "c"},
	}
	got, err := resolveExtensions("test", requested, available, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"c", "a"}) {
		t.Errorf("resolved %v", got)
	}

	_, err = resolveExtensions("test", Require("a", "missing"), available, discardLogger())
	if !errors.Is(err, gfx.ErrMissingExtension) {
		t.Errorf("expected missing extension, got %v", err)
	}

	got, err = resolveExtensions("test", nil, available, discardLogger())
	if err != nil || len(got) != 0 {
		t.Errorf("nothing requested: %v %v", got, err)
	}
}

func TestRequire(t *testing.T) {
	ext := Require("x", "y")
	if len(ext) != 2 || !ext[0].Required || !ext[1].Required || ext[1].Name != "y" {
		t.Errorf("got %v", ext)
	}
	if names := requiredNames(append(ext, Extension{Name: "z"})); !reflect.DeepEqual(names, []string{"x", "y"}) {
		t.Errorf("required names %v", names)
	}
}

func TestSafeString(t *testing.T) {
	cases := map[string]string{
		"":           "\x00",
		"abc":        "abc\x00",
		"abc\x00":    "abc\x00",
		"VK_KHR_foo": "VK_KHR_foo\x00",
	}
	for in, want := range cases {
		if got := safeString(in); got != want {
			t.Errorf("safeString(%q) = %q", in, got)
		}
	}
	if got := safeStrings([]string{"a", "b\x00"}); !reflect.DeepEqual(got, []string{"a\x00", "b\x00"}) {
		t.Errorf("safeStrings gave %q", got)
	}
}

func TestVersion(t *testing.T) {
	v := Version{Major: 1, Minor: 2, Patch: 3}
	if s := VersionString(v.VKVersion()); s != "1.2.3" {
		t.Errorf("version %s", s)
	}
}

func TestSelectQueues(t *testing.T) {
	graphicsOnly := &QueueFamily{Index: 0, Flags: vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit), Count: 1}
	presenting := &QueueFamily{Index: 1, Flags: vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit), Count: 1, Present: true}
	compute := &QueueFamily{Index: 2, Flags: vk.QueueFlags(vk.QueueComputeBit | vk.QueueTransferBit), Count: 1}
	transfer := &QueueFamily{Index: 3, Flags: vk.QueueFlags(vk.QueueTransferBit), Count: 1}
	families := QueueFamilySlice{graphicsOnly, presenting, compute, transfer}

	sel, err := selectQueues(families, true)
	if err != nil {
		t.Fatal(err)
	}
	want := queueSelection{Graphics: 1, Compute: 2, Transfer: 3, Present: 1}
	if sel != want {
		t.Errorf("selected %+v", sel)
	}
	if f := sel.families(); !reflect.DeepEqual(f, []int{1, 2, 3}) {
		t.Errorf("families %v", f)
	}

	sel, _ = selectQueues(families, false)
	if sel.Graphics != 0 || sel.Present != -1 {
		t.Errorf("headless selection %+v", sel)
	}

	if _, err := selectQueues(QueueFamilySlice{graphicsOnly}, true); !errors.Is(err, gfx.ErrNoDevice) {
		t.Errorf("no present family: %v", err)
	}
	if _, err := selectQueues(QueueFamilySlice{compute, transfer}, false); !errors.Is(err, gfx.ErrNoDevice) {
		t.Errorf("no graphics family: %v", err)
	}
}

func TestQueueFamilyCapabilities(t *testing.T) {
	f := &QueueFamily{Flags: vk.QueueFlags(vk.QueueComputeBit)}
	caps := f.Capabilities()
	if caps&gfx.ComputeCapability == 0 || caps&gfx.TransferCapability == 0 || caps&gfx.GraphicsCapability != 0 {
		t.Errorf("compute family has %s", caps)
	}
}

func TestScoreDevice(t *testing.T) {
	full := fakePhysicalDevice(
		universalFamily(0),
		&QueueFamily{Index: 1, Flags: vk.QueueFlags(vk.QueueComputeBit), Count: 1},
		&QueueFamily{Index: 2, Flags: vk.QueueFlags(vk.QueueTransferBit), Count: 1},
	)
	full.SamplerAnisotropy = true
	full.Limits.MaxImageDimension2D = 16384
	if s := scoreDevice(full, nil, true); s != 1000+50+25+10+4 {
		t.Errorf("full device scored %d", s)
	}

	integrated := fakePhysicalDevice()
	integrated.Type = vk.PhysicalDeviceTypeIntegratedGpu
	if s := scoreDevice(integrated, nil, true); s != 501 {
		t.Errorf("integrated device scored %d", s)
	}

	other := fakePhysicalDevice()
	other.Type = vk.PhysicalDeviceTypeOther
	if s := scoreDevice(other, nil, false); s != 11 {
		t.Errorf("other device scored %d", s)
	}

	if s := scoreDevice(full, []string{"VK_missing"}, false); s != 0 {
		t.Errorf("device without a required extension scored %d", s)
	}
	family := universalFamily(0)
	family.Present = false
	if s := scoreDevice(fakePhysicalDevice(family), nil, true); s != 0 {
		t.Errorf("device unable to present scored %d", s)
	}
}

func TestChooseDevice(t *testing.T) {
	discrete := fakePhysicalDevice()
	discrete.Name = "discrete"
	integrated := fakePhysicalDevice()
	integrated.Name = "integrated"
	integrated.Type = vk.PhysicalDeviceTypeIntegratedGpu
	noSwapchain := fakePhysicalDevice()
	noSwapchain.Name = "bare"
	noSwapchain.Extensions = nil
	devices := []*PhysicalDevice{integrated, noSwapchain, discrete}
	required := []string{swapchainExtension}

	if d, err := chooseDevice(devices, "", required, true); err != nil || d != discrete {
		t.Errorf("best device %v, %v", d, err)
	}
	if d, err := chooseDevice(devices, "integrated", required, true); err != nil || d != integrated {
		t.Errorf("named device %v, %v", d, err)
	}
	if _, err := chooseDevice(devices, "bare", required, true); !errors.Is(err, gfx.ErrNoDevice) {
		t.Errorf("unsuitable named device: %v", err)
	}
	if _, err := chooseDevice(devices, "nope", required, true); !errors.Is(err, gfx.ErrNoDevice) {
		t.Errorf("unknown device: %v", err)
	}
	if _, err := chooseDevice(nil, "", required, false); !errors.Is(err, gfx.ErrNoDevice) {
		t.Errorf("no devices: %v", err)
	}
}

func TestPhysicalDeviceInfo(t *testing.T) {
	pd := fakePhysicalDevice()
	pd.Heaps = []MemoryHeap{{Size: 1 << 30, DeviceLocal: true}, {Size: 1 << 32}, {Size: 1 << 28, DeviceLocal: true}}
	if m := pd.DeviceLocalMemory(); m != 1<<30+1<<28 {
		t.Errorf("device local memory %d", m)
	}
	if pd.TypeName() != "Discrete GPU" {
		t.Errorf("type %s", pd.TypeName())
	}
	pd.Type = vk.PhysicalDeviceTypeCpu
	if pd.TypeName() != "CPU" {
		t.Errorf("type %s", pd.TypeName())
	}
	if !pd.HasExtension(swapchainExtension) || pd.HasExtension(debugReportExtension) {
		t.Error("extension lookup")
	}
}

func TestLoaderOpensOneContext(t *testing.T) {
	l := NewLoader(nil)
	c := &Context{loader: l, log: discardLogger()}
	l.open = c

	if _, err := l.Open(ContextOptions{}); !errors.Is(err, gfx.ErrAlreadyOpen) {
		t.Errorf("expected already open, got %v", err)
	}
	c.Close()
	c.Close()
	if l.open != nil {
		t.Error("closing did not release the loader")
	}
}

func TestContextOptionsDefaults(t *testing.T) {
	o := ContextOptions{}.withDefaults()
	if o.Logger == nil || o.ApplicationName == "" {
		t.Error("defaults missing")
	}
	if o.APIVersion != (Version{Major: 1, Minor: 1}) {
		t.Errorf("api version %+v", o.APIVersion)
	}
	o = ContextOptions{APIVersion: Version{Major: 1, Minor: 3}}.withDefaults()
	if o.APIVersion.Minor != 3 {
		t.Error("api version overridden")
	}
}
