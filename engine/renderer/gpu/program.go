package gpu

// ProgramKind selects the pipeline type a program is built as.
type ProgramKind uint8

const (
	ProgramCompute ProgramKind = iota
	ProgramGraphics
)

func (k ProgramKind) String() string {
	if k == ProgramGraphics {
		return "graphics"
	}
	return "compute"
}

// BindingKind is the resource type of one shader binding.
type BindingKind uint8

const (
	BindingUniformBuffer BindingKind = iota
	BindingStorageBuffer
	BindingReadOnlyStorageBuffer
	BindingSampledImage
	BindingStorageImage
	BindingSampler
)

var bindingKindNames = [...]string{"uniform", "storage", "read-only storage", "sampled image", "storage image", "sampler"}

func (k BindingKind) String() string {
	if int(k) < len(bindingKindNames) {
		return bindingKindNames[k]
	}
	return "unknown"
}

// BindingLayout describes one binding slot of a program, as reflected from its shader source.
type BindingLayout struct {
	Group   uint32
	Binding uint32
	Kind    BindingKind
	Name    string
	// StorageFormat is the texel format of a storage image binding.
	StorageFormat Format
	// MinSize is the smallest valid buffer binding size, zero if unknown.
	MinSize uint64
}

// ProgramDesc describes a compute or graphics program.
//
// WGSL is always set. SPIRV is filled by backends that consume SPIR-V words; the program
// registry compiles it from WGSL before creation.
type ProgramDesc struct {
	Name          string
	Kind          ProgramKind
	WGSL          string
	SPIRV         []uint32
	ComputeEntry  string
	VertexEntry   string
	FragmentEntry string
	WorkgroupSize [3]uint32
	Bindings      []BindingLayout

	ColorFormats []Format
	DepthFormat  Format
	DepthTest    bool
	DepthWrite   bool
	// Blend enables premultiplied alpha blending on every color target.
	Blend bool
}

// Program is a backend pipeline object.
type Program interface {
	Label() string
}

// Binding binds one buffer range or image to a binding slot at record time. Sampler slots are
// filled by the backend with its default linear clamp sampler and need no Binding.
type Binding struct {
	Group   uint32
	Binding uint32
	Buffer  Buffer
	Offset  uint64
	Size    uint64
	Image   Image
}

// BufferBinding binds a buffer range. A size of zero binds the rest of the buffer.
func BufferBinding(group, binding uint32, buf Buffer, offset, size uint64) Binding {
	return Binding{Group: group, Binding: binding, Buffer: buf, Offset: offset, Size: size}
}

// ImageBinding binds a whole image.
func ImageBinding(group, binding uint32, img Image) Binding {
	return Binding{Group: group, Binding: binding, Image: img}
}
