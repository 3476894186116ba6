// Command vkinfo prints the layers, extensions and physical devices of the Vulkan runtime
// and how each device would score when a context picks one.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	units "github.com/docker/go-units"
	"github.com/heyallnorahere/code-playground-sub000/vulkan"
	"github.com/xlab/tablewriter"
	"golang.org/x/exp/slog"
)

var (
	validation = flag.Bool("validation", false, "enable the validation layer")
	device     = flag.String("device", "", "open the device with this name instead of the best one")
	extensions = flag.Bool("extensions", false, "list device extensions")
	verbose    = flag.Bool("v", false, "debug logging")
)

func list(table *tablewriter.Table, title string, names []string) {
	table.AddSeparator()
	table.AddRow(strings.ToUpper(title), fmt.Sprintf("%d", len(names)))
	for i, name := range names {
		table.AddRow(i+1, name)
	}
}

func showDevice(pd *vulkan.PhysicalDevice, chosen bool) string {
	table := tablewriter.CreateTable()
	table.UTF8Box()
	title := pd.Name
	if chosen {
		title += " (selected)"
	}
	table.AddTitle(title)
	table.AddRow("Type", pd.TypeName())
	table.AddRow("Vendor", fmt.Sprintf("%04x:%04x", pd.VendorID, pd.DeviceID))
	table.AddRow("API Version", vulkan.VersionString(pd.APIVersion))
	table.AddRow("Driver Version", vulkan.VersionString(pd.DriverVersion))
	table.AddRow("Score", pd.Score(nil, false))
	table.AddRow("Max Image Size", pd.Limits.MaxImageDimension2D)
	table.AddRow("Max Anisotropy", pd.Limits.MaxSamplerAnisotropy)
	table.AddRow("Timestamp Period", fmt.Sprintf("%gns", pd.Limits.TimestampPeriod))
	table.AddRow("Device Local Memory", units.BytesSize(float64(pd.DeviceLocalMemory())))

	table.AddSeparator()
	table.AddRow("QUEUE FAMILIES", fmt.Sprintf("%d", len(pd.QueueFamilies)))
	for _, qf := range pd.QueueFamilies {
		table.AddRow(qf.Index, fmt.Sprintf("%s x%d", qf.Capabilities(), qf.Count))
	}

	table.AddSeparator()
	table.AddRow("MEMORY HEAPS", fmt.Sprintf("%d", len(pd.Heaps)))
	for i, h := range pd.Heaps {
		kind := "host"
		if h.DeviceLocal {
			kind = "device local"
		}
		table.AddRow(i, fmt.Sprintf("%s %s", units.BytesSize(float64(h.Size)), kind))
	}

	if *extensions {
		list(table, "device extensions", pd.Extensions)
	}
	return table.Render()
}

func main() {
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	loader := vulkan.NewLoader(nil)
	layers, err := loader.InstanceLayers()
	if err != nil {
		log.Error("listing layers", "err", err)
		os.Exit(1)
	}
	instanceExtensions, err := loader.InstanceExtensions()
	if err != nil {
		log.Error("listing instance extensions", "err", err)
		os.Exit(1)
	}

	runtime := tablewriter.CreateTable()
	runtime.UTF8Box()
	runtime.AddTitle("VULKAN RUNTIME")
	list(runtime, "instance layers", layers)
	list(runtime, "instance extensions", instanceExtensions)
	fmt.Println(runtime.Render())

	c, err := loader.Open(vulkan.ContextOptions{
		ApplicationName: "vkinfo",
		Validation:      *validation,
		Device:          *device,
		Logger:          log,
	})
	if err != nil {
		log.Error("opening a context", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	for _, pd := range c.Devices {
		fmt.Println(showDevice(pd, pd == c.Device.PhysicalDevice))
	}
}
