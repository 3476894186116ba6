package vulkan

import (
	"unsafe"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"
)

// Loader owns the Vulkan entry points. A loader opens one Context at a time.
type Loader struct {
	procAddr    unsafe.Pointer
	initialized bool
	open        *Context
}

// NewLoader returns a loader resolving entry points through procAddr, a
// vkGetInstanceProcAddr such as the one GLFW provides. A nil procAddr uses the system
// Vulkan library.
func NewLoader(procAddr unsafe.Pointer) *Loader {
	return &Loader{procAddr: procAddr}
}

func (l *Loader) init() error {
	if l.initialized {
		return nil
	}
	if l.procAddr != nil {
		vk.SetGetInstanceProcAddr(l.procAddr)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return errors.Wrap(err, "load vulkan")
	}
	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "init vulkan")
	}
	l.initialized = true
	return nil
}

// InstanceLayers lists the layers the runtime offers.
func (l *Loader) InstanceLayers() ([]string, error) {
	if err := l.init(); err != nil {
		return nil, err
	}
	var instanceLayerLen uint32
	err := vk.Error(vk.EnumerateInstanceLayerProperties(&instanceLayerLen, nil))
	if err != nil {
		return nil, err
	}
	instanceLayer := make([]vk.LayerProperties, instanceLayerLen)
	err = vk.Error(vk.EnumerateInstanceLayerProperties(&instanceLayerLen, instanceLayer))
	if err != nil {
		return nil, err
	}
	layerNames := make([]string, 0, len(instanceLayer))
	for _, layer := range instanceLayer {
		layer.Deref()
		layerNames = append(layerNames, vk.ToString(layer.LayerName[:]))
	}
	return layerNames, nil
}

// InstanceExtensions lists the instance extensions the runtime offers.
func (l *Loader) InstanceExtensions() ([]string, error) {
	if err := l.init(); err != nil {
		return nil, err
	}
	var instanceExtLen uint32
	err := vk.Error(vk.EnumerateInstanceExtensionProperties("", &instanceExtLen, nil))
	if err != nil {
		return nil, err
	}
	instanceExt := make([]vk.ExtensionProperties, instanceExtLen)
	err = vk.Error(vk.EnumerateInstanceExtensionProperties("", &instanceExtLen, instanceExt))
	if err != nil {
		return nil, err
	}
	extNames := make([]string, 0, len(instanceExt))
	for _, ext := range instanceExt {
		ext.Deref()
		extNames = append(extNames, vk.ToString(ext.ExtensionName[:]))
	}
	return extNames, nil
}

// Version is used to specify versions of components
type Version struct {
	Major int
	Minor int
	Patch int
}

// VKVersion returns a Vulkan compatible version representation
func (v Version) VKVersion() uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

// ContextOptions configure Open.
type ContextOptions struct {
	ApplicationName string
	Version         Version
	// APIVersion defaults to 1.1
	APIVersion Version

	Extensions       []Extension
	Layers           []Extension
	DeviceExtensions []Extension

	// Validation requests the Khronos validation layer and logs its reports. Both are
	// optional.
	Validation bool

	// Surface creates the surface to present to once the instance exists. Without it the
	// context is headless and has no present queue.
	Surface func(instance vk.Instance) (vk.Surface, error)

	// Device selects the physical device with this name instead of the best scoring one
	Device string

	DeviceOptions DeviceOptions
	Logger        *slog.Logger
}

func (o ContextOptions) withDefaults() ContextOptions {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.APIVersion.Major == 0 {
		o.APIVersion = Version{Major: 1, Minor: 1}
	}
	if o.ApplicationName == "" {
		o.ApplicationName = "gfx"
	}
	return o
}

// Context is an instance together with the device chosen on it.
type Context struct {
	VKInstance vk.Instance
	Surface    vk.Surface
	// Devices are all physical devices, Device the logical device opened on one of them.
	Devices []*PhysicalDevice
	Device  *Device

	loader        *Loader
	debugCallback vk.DebugReportCallback
	log           *slog.Logger
	closed        bool
}

// debugReport logs validation messages through log.
func debugReport(log *slog.Logger) vk.DebugReportCallbackFunc {
	return func(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
		object uint64, location uint, messageCode int32, pLayerPrefix string,
		pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

		attrs := []any{"layer", pLayerPrefix, "code", messageCode}
		switch {
		case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
			log.Error(pMessage, attrs...)
		case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
			log.Warn(pMessage, attrs...)
		case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
			log.Info(pMessage, attrs...)
		default:
			log.Debug(pMessage, attrs...)
		}
		return vk.Bool32(vk.False)
	}
}

// Open creates the instance, picks a physical device and opens a logical device on it.
func (l *Loader) Open(opts ContextOptions) (*Context, error) {
	if l.open != nil {
		return nil, errors.Wrap(gfx.ErrAlreadyOpen, "close the open context first")
	}
	if err := l.init(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	c := &Context{loader: l, log: opts.Logger.With("component", "context")}

	if err := c.createInstance(l, opts); err != nil {
		c.close()
		return nil, err
	}
	if opts.Surface != nil {
		surface, err := opts.Surface(c.VKInstance)
		if err != nil {
			c.close()
			return nil, errors.Wrap(err, "create surface")
		}
		c.Surface = surface
	}
	if err := c.openDevice(opts); err != nil {
		c.close()
		return nil, err
	}
	l.open = c
	return c, nil
}

func (c *Context) createInstance(l *Loader, opts ContextOptions) error {
	availableLayers, err := l.InstanceLayers()
	if err != nil {
		return errors.Wrap(err, "enumerate layers")
	}
	availableExtensions, err := l.InstanceExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	layerRequests := append([]Extension(nil), opts.Layers...)
	extensionRequests := append([]Extension(nil), opts.Extensions...)
	if opts.Validation {
		layerRequests = append(layerRequests, Extension{Name: validationLayer})
		extensionRequests = append(extensionRequests, Extension{Name: debugReportExtension})
	}
	layers, err := resolveExtensions("layer", layerRequests, availableLayers, c.log)
	if err != nil {
		return err
	}
	extensions, err := resolveExtensions("instance extension", extensionRequests, availableExtensions, c.log)
	if err != nil {
		return err
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         opts.APIVersion.VKVersion(),
		ApplicationVersion: opts.Version.VKVersion(),
		PApplicationName:   safeString(opts.ApplicationName),
		PEngineName:        safeString("gfx"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}
	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return errors.Wrap(err, "create instance")
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return errors.Wrap(err, "init instance")
	}
	c.VKInstance = instance
	c.log.Debug("created instance", "layers", layers, "extensions", extensions)

	if opts.Validation && contains(extensions, debugReportExtension) {
		var callback vk.DebugReportCallback
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugReport(opts.Logger.With("component", "validation")),
		}, nil, &callback)
		if err := vk.Error(ret); err != nil {
			c.log.Warn("debug report callback unavailable", "err", err)
		} else {
			c.debugCallback = callback
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// requiredNames returns the names of the required requests.
func requiredNames(requests []Extension) []string {
	var ret []string
	for _, r := range requests {
		if r.Required {
			ret = append(ret, r.Name)
		}
	}
	return ret
}

// enumerateDevices inspects every physical device of the instance.
func (c *Context) enumerateDevices() error {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(c.VKInstance, &deviceCount, nil)); err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}
	devices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(c.VKInstance, &deviceCount, devices)); err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}
	c.Devices = c.Devices[:0]
	for _, device := range devices {
		pd, err := inspectPhysicalDevice(device, c.Surface)
		if err != nil {
			return errors.Wrap(err, "inspect physical device")
		}
		c.Devices = append(c.Devices, pd)
	}
	return nil
}

// chooseDevice returns the device named name, or the best scoring one.
func chooseDevice(devices []*PhysicalDevice, name string, required []string, needPresent bool) (*PhysicalDevice, error) {
	if name != "" {
		for _, d := range devices {
			if d.Name == name {
				if scoreDevice(d, required, needPresent) == 0 {
					return nil, errors.Wrapf(gfx.ErrNoDevice, "%s is not suitable", name)
				}
				return d, nil
			}
		}
		return nil, errors.Wrapf(gfx.ErrNoDevice, "no device named %s", name)
	}
	best, _ := bestDevice(devices, required, needPresent)
	if best == nil {
		return nil, errors.Wrapf(gfx.ErrNoDevice, "none of %d devices is suitable", len(devices))
	}
	return best, nil
}

func (c *Context) openDevice(opts ContextOptions) error {
	if err := c.enumerateDevices(); err != nil {
		return err
	}
	needPresent := c.Surface != nil

	requests := append([]Extension(nil), opts.DeviceExtensions...)
	if needPresent {
		requests = append(requests, Extension{Name: swapchainExtension, Required: true})
	}
	for _, pd := range c.Devices {
		c.log.Debug("found physical device", "name", pd.Name, "type", pd.TypeName(),
			"score", scoreDevice(pd, requiredNames(requests), needPresent))
	}
	pd, err := chooseDevice(c.Devices, opts.Device, requiredNames(requests), needPresent)
	if err != nil {
		return err
	}
	extensions, err := resolveExtensions("device extension", requests, pd.Extensions, c.log)
	if err != nil {
		return err
	}
	sel, err := selectQueues(pd.QueueFamilies, needPresent)
	if err != nil {
		return err
	}

	families := sel.families()
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for j, index := range families {
		queueCreateInfos[j] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(index),
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	var features vk.PhysicalDeviceFeatures
	if pd.SamplerAnisotropy {
		features.SamplerAnisotropy = vk.True
	} else {
		pd.Limits.MaxSamplerAnisotropy = 1
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	var device vk.Device
	if err := vk.Error(vk.CreateDevice(pd.VKPhysicalDevice, &deviceCreateInfo, nil, &device)); err != nil {
		return errors.Wrapf(gfx.ErrAllocation, "create device on %s: %v", pd.Name, err)
	}

	api := &vkDevice{device: device, physical: pd.VKPhysicalDevice}
	c.Device, err = newDevice(api, pd, sel, opts.DeviceOptions, opts.Logger)
	if err != nil {
		return err
	}
	c.log.Info("opened device", "name", pd.Name, "type", pd.TypeName(),
		"api", VersionString(pd.APIVersion), "extensions", extensions)
	return nil
}

// Close destroys the device, the surface and the instance, and lets the loader open
// another context.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.close()
	if c.loader.open == c {
		c.loader.open = nil
	}
}

func (c *Context) close() {
	c.closed = true
	if c.Device != nil {
		c.Device.Destroy()
	}
	if c.VKInstance == nil {
		return
	}
	if c.Surface != nil {
		vk.DestroySurface(c.VKInstance, c.Surface, nil)
	}
	if c.debugCallback != nil {
		vk.DestroyDebugReportCallback(c.VKInstance, c.debugCallback, nil)
	}
	vk.DestroyInstance(c.VKInstance, nil)
}
