// Package program owns the shader programs of the renderer. Programs are loaded by name from a
// Source, pre-processed, reflected, validated by compiling to SPIR-V and created on the device.
// A reload replaces the backend object behind an unchanged handle and defers destruction of the
// old object until the frames using it have retired.
package program

import (
	"io/fs"
	"path"
	"slices"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/handle"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
)

// Source supplies WGSL source text by program name.
type Source interface {
	Load(name string) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(name string) (string, error)

func (f SourceFunc) Load(name string) (string, error) { return f(name) }

type fsSource struct {
	fsys fs.FS
	dir  string
}

// FSSource loads "<dir>/<name>.wgsl" from fsys. It serves both embedded shaders and os.DirFS
// for on-disk shader editing.
//
// Parameters:
//   - fsys: the file system
//   - dir: directory inside fsys holding the shaders
//
// Returns:
//   - Source: the source
func FSSource(fsys fs.FS, dir string) Source {
	return fsSource{fsys: fsys, dir: dir}
}

func (s fsSource) Load(name string) (string, error) {
	data, err := fs.ReadFile(s.fsys, path.Join(s.dir, name+".wgsl"))
	if err != nil {
		return "", errors.Wrapf(err, "load shader %q", name)
	}
	return string(data), nil
}

// Releaser defers destruction of a replaced program until the GPU no longer uses it.
type Releaser interface {
	ReleaseProgram(p gpu.Program)
}

// Compiler turns WGSL into SPIR-V bytes.
type Compiler func(source string) ([]byte, error)

// Program is one loaded shader program.
type Program struct {
	Name       string
	Desc       gpu.ProgramDesc
	Object     gpu.Program
	Reflection shader.Reflection
	// Version counts successful loads, starting at 1.
	Version int

	template gpu.ProgramDesc
}

// Handle identifies a program. It stays valid across reloads.
type Handle = handle.Handle[Program]

// Registry loads programs and reloads them in place.
type Registry interface {
	// Load loads, validates and creates the named program. Loading a name twice returns the
	// existing handle.
	//
	// Parameters:
	//   - name: program name passed to the Source
	//   - options: pipeline state for graphics programs
	//
	// Returns:
	//   - Handle: the program handle
	//   - error: load, pre-process, reflection, compile or creation failure
	Load(name string, options ...ProgramBuilderOption) (Handle, error)

	// Program returns the program behind h.
	Program(h Handle) (*Program, error)

	// MustProgram is Program that panics on a stale handle.
	MustProgram(h Handle) *Program

	// Lookup returns the handle of a loaded program.
	Lookup(name string) (Handle, bool)

	// Reload rebuilds the named program from its source. On failure the previous program stays
	// in use and the error is returned. On success the old backend object is handed to the
	// Releaser and the handle keeps its value.
	//
	// Parameters:
	//   - name: the program to reload
	//
	// Returns:
	//   - error: the program is unknown or failed to rebuild
	Reload(name string) error

	// Names returns the loaded program names, sorted.
	Names() []string

	// Destroy destroys every program immediately. The GPU must be idle.
	Destroy()
}

type registryImpl struct {
	device   gpu.Device
	source   Source
	releaser Releaser
	compile  Compiler
	pre      shader.PreProcessor
	programs *handle.Pool[Program]
	byName   map[string]Handle
}

var _ Registry = &registryImpl{}

// NewRegistry creates a program registry.
//
// Parameters:
//   - device: the device programs are created on
//   - source: where program sources come from
//   - releaser: receives replaced programs for deferred destruction
//   - options: registry options
//
// Returns:
//   - Registry: the registry
func NewRegistry(device gpu.Device, source Source, releaser Releaser, options ...RegistryBuilderOption) Registry {
	r := &registryImpl{
		device:   device,
		source:   source,
		releaser: releaser,
		compile:  naga.Compile,
		programs: handle.NewPool[Program](32),
		byName:   make(map[string]Handle),
	}
	for _, opt := range options {
		opt(r)
	}
	if r.pre == nil {
		r.pre = shader.NewPreProcessor()
	}
	return r
}

func (r *registryImpl) Load(name string, options ...ProgramBuilderOption) (Handle, error) {
	if h, ok := r.byName[name]; ok {
		return h, nil
	}
	template := gpu.ProgramDesc{Name: name}
	for _, opt := range options {
		opt(&template)
	}
	desc, refl, err := r.build(name, template)
	if err != nil {
		return handle.None[Program](), err
	}
	obj, err := r.device.CreateProgram(desc)
	if err != nil {
		return handle.None[Program](), errors.Wrapf(err, "create program %q", name)
	}
	h := r.programs.Add(Program{Name: name, Desc: desc, Object: obj, Reflection: refl, Version: 1, template: template})
	r.byName[name] = h
	common.Logger().Debug("program loaded", "name", name, "kind", desc.Kind, "bindings", len(desc.Bindings))
	return h, nil
}

// build runs the source through the pre-processor, reflection and the compiler.
func (r *registryImpl) build(name string, template gpu.ProgramDesc) (gpu.ProgramDesc, shader.Reflection, error) {
	raw, err := r.source.Load(name)
	if err != nil {
		return template, shader.Reflection{}, err
	}
	src, err := r.pre.Process(raw)
	if err != nil {
		return template, shader.Reflection{}, errors.Wrapf(err, "pre-process %q", name)
	}
	refl, err := shader.Reflect(name, src)
	if err != nil {
		return template, refl, err
	}
	spirv, err := r.compile(src)
	if err != nil {
		return template, refl, errors.Wrapf(err, "compile %q", name)
	}

	desc := template
	desc.Kind = refl.Kind
	desc.WGSL = src
	desc.SPIRV = common.BytesToUint32s(spirv)
	desc.ComputeEntry = refl.ComputeEntry
	desc.VertexEntry = refl.VertexEntry
	desc.FragmentEntry = refl.FragmentEntry
	desc.WorkgroupSize = refl.WorkgroupSize
	desc.Bindings = refl.Bindings
	return desc, refl, nil
}

func (r *registryImpl) Program(h Handle) (*Program, error) {
	p, ok := r.programs.Get(h)
	if !ok {
		return nil, errors.Wrapf(common.ErrInvalidHandle, "program %s", h)
	}
	return p, nil
}

func (r *registryImpl) MustProgram(h Handle) *Program {
	p, err := r.Program(h)
	if err != nil {
		panic(err)
	}
	return p
}

func (r *registryImpl) Lookup(name string) (Handle, bool) {
	h, ok := r.byName[name]
	return h, ok
}

func (r *registryImpl) Reload(name string) error {
	h, ok := r.byName[name]
	if !ok {
		return errors.Newf("reload of unknown program %q", name)
	}
	p := r.MustProgram(h)
	desc, refl, err := r.build(name, p.template)
	if err != nil {
		common.Logger().Warn("program reload failed, keeping previous version", "name", name, "error", err)
		return err
	}
	if desc.Kind != p.Desc.Kind {
		return errors.Newf("reload of %q changes its kind from %v to %v", name, p.Desc.Kind, desc.Kind)
	}
	obj, err := r.device.CreateProgram(desc)
	if err != nil {
		return errors.Wrapf(err, "create program %q", name)
	}
	r.releaser.ReleaseProgram(p.Object)
	p.Object = obj
	p.Desc = desc
	p.Reflection = refl
	p.Version++
	common.Logger().Info("program reloaded", "name", name, "version", p.Version)
	return nil
}

func (r *registryImpl) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *registryImpl) Destroy() {
	r.programs.Each(func(_ Handle, p *Program) {
		r.device.DestroyProgram(p.Object)
	})
	r.programs.Clear()
	clear(r.byName)
}
