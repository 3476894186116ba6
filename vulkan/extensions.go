package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

const (
	swapchainExtension   = "VK_KHR_swapchain"
	debugReportExtension = "VK_EXT_debug_report"
	validationLayer      = "VK_LAYER_KHRONOS_validation"
)

// Extension requests an instance extension, device extension or layer.
type Extension struct {
	Name string
	// Required extensions that are missing fail initialization. Others are skipped.
	Required bool
}

// Require is shorthand for required extensions.
func Require(names ...string) []Extension {
	ret := make([]Extension, len(names))
	for i, n := range names {
		ret[i] = Extension{Name: n, Required: true}
	}
	return ret
}

// resolveExtensions returns the requested names that are available, each once, in request
// order. kind names what is resolved in errors and logs.
func resolveExtensions(kind string, requested []Extension, available []string, log *slog.Logger) ([]string, error) {
	have := make(map[string]bool, len(available))
	for _, a := range available {
		have[a] = true
	}
	enabled := []string{}
	seen := map[string]bool{}
	for _, r := range requested {
		if seen[r.Name] {
			continue
		}
		if !have[r.Name] {
			if r.Required {
				return nil, errors.Wrapf(gfx.ErrMissingExtension, "%s %s", kind, r.Name)
			}
			log.Warn("optional "+kind+" not available", "name", r.Name)
			continue
		}
		seen[r.Name] = true
		enabled = append(enabled, r.Name)
	}
	return enabled, nil
}

var end = "\x00"
var endChar byte = '\x00'

// safeString null terminates s for the loader.
func safeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	ret := make([]string, len(list))
	for i := range list {
		ret[i] = safeString(list[i])
	}
	return ret
}
