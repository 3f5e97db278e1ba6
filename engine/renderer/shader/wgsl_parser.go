package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
)

// wgslTexelFormatMap maps WGSL storage texel formats to gpu formats.
var wgslTexelFormatMap = map[string]gpu.Format{
	"rgba8unorm":  gpu.FormatRGBA8Unorm,
	"bgra8unorm":  gpu.FormatBGRA8Unorm,
	"rgba16float": gpu.FormatRGBA16Float,
	"rgba32float": gpu.FormatRGBA32Float,
	"r32uint":     gpu.FormatR32Uint,
	"r32float":    gpu.FormatR32Float,
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct member: optional attributes, name, colon, type
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	vertexEntryRegex   = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)
	computeEntryRegex  = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	// workgroupSizeRegex captures 1-3 dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindingDeclRegex captures group, binding, address space, name and type of declarations
	// such as `@group(0) @binding(1) var<storage, read> predicate: array<u32>;`
	bindingDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parseBindings extracts every @group/@binding declaration, sorted by group then binding.
// Buffer bindings carry the minimum binding size of their type when it can be computed.
//
// Parameters:
//   - source: WGSL source with comments stripped
//
// Returns:
//   - []gpu.BindingLayout: the declared bindings
func parseBindings(source string) []gpu.BindingLayout {
	structSizes := computeStructSizes(parseStructBlocks(source))

	var out []gpu.BindingLayout
	for _, m := range bindingDeclRegex.FindAllStringSubmatch(source, -1) {
		group, _ := strconv.ParseUint(m[1], 10, 32)
		binding, _ := strconv.ParseUint(m[2], 10, 32)
		typeName := strings.TrimSpace(m[5])
		b := classifyBinding(strings.TrimSpace(m[3]), typeName)
		b.Group = uint32(group)
		b.Binding = uint32(binding)
		b.Name = strings.TrimSpace(m[4])
		if isBufferBinding(b.Kind) {
			if layout, ok := resolveTypeLayout(typeName, structSizes); ok {
				b.MinSize = layout.size
			}
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Binding < out[j].Binding
	})
	return out
}

func isBufferBinding(k gpu.BindingKind) bool {
	return k == gpu.BindingUniformBuffer || k == gpu.BindingStorageBuffer || k == gpu.BindingReadOnlyStorageBuffer
}

// classifyBinding maps an address space and type to a binding kind. Declarations with an
// address space are buffers; the rest are handle types.
func classifyBinding(addressSpace, typeName string) gpu.BindingLayout {
	switch {
	case addressSpace == "uniform":
		return gpu.BindingLayout{Kind: gpu.BindingUniformBuffer}
	case strings.HasPrefix(addressSpace, "storage"):
		if strings.Contains(addressSpace, "read_write") {
			return gpu.BindingLayout{Kind: gpu.BindingStorageBuffer}
		}
		return gpu.BindingLayout{Kind: gpu.BindingReadOnlyStorageBuffer}
	case strings.HasPrefix(typeName, "sampler"):
		return gpu.BindingLayout{Kind: gpu.BindingSampler}
	case strings.HasPrefix(typeName, "texture_storage_"):
		_, params := splitTypeParams(typeName)
		format, _, _ := strings.Cut(params, ",")
		return gpu.BindingLayout{Kind: gpu.BindingStorageImage, StorageFormat: wgslTexelFormatMap[strings.TrimSpace(format)]}
	}
	return gpu.BindingLayout{Kind: gpu.BindingSampledImage}
}

// parseWorkgroupSize extracts @workgroup_size; omitted dimensions default to 1.
func parseWorkgroupSize(source string) [3]uint32 {
	result := [3]uint32{1, 1, 1}
	m := workgroupSizeRegex.FindStringSubmatch(source)
	if m == nil {
		return result
	}
	for i := 0; i < 3; i++ {
		if m[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(m[i+1], 10, 32); err == nil {
			result[i] = uint32(v)
		}
	}
	return result
}

func parseEntryPoint(source string, re *regexp.Regexp) string {
	if m := re.FindStringSubmatch(source); m != nil {
		return m[1]
	}
	return ""
}

func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, m := range matches {
		structs = append(structs, parsedStruct{name: m[1], fields: parseStructFields(m[2])})
	}
	return structs
}

func parseStructFields(body string) []parsedField {
	var fields []parsedField
	for _, line := range splitAtTopLevelCommas(body) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		fields = append(fields, parsedField{
			name:      fm[1],
			typeName:  strings.TrimSpace(fm[2]),
			isBuiltin: builtinRegex.MatchString(line),
		})
	}
	return fields
}
