package gputest

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
)

// Op identifies a recorded command.
type Op uint8

const (
	OpBarriers Op = iota
	OpCopyBuffer
	OpFillBuffer
	OpBeginCompute
	OpBeginRender
	OpSetProgram
	OpSetBindings
	OpSetIndexBuffer
	OpSetScissor
	OpDispatch
	OpDraw
	OpDrawIndexed
	OpDrawIndexedIndirectCount
	OpEndPass
	OpTimestamp
)

var opNames = [...]string{
	OpBarriers:                 "Barriers",
	OpCopyBuffer:               "CopyBuffer",
	OpFillBuffer:               "FillBuffer",
	OpBeginCompute:             "BeginCompute",
	OpBeginRender:              "BeginRender",
	OpSetProgram:               "SetProgram",
	OpSetBindings:              "SetBindings",
	OpSetIndexBuffer:           "SetIndexBuffer",
	OpSetScissor:               "SetScissor",
	OpDispatch:                 "Dispatch",
	OpDraw:                     "Draw",
	OpDrawIndexed:              "DrawIndexed",
	OpDrawIndexedIndirectCount: "DrawIndexedIndirectCount",
	OpEndPass:                  "EndPass",
	OpTimestamp:                "Timestamp",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "Op(?)"
}

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op Op
	// Pass is the label of the pass the command was recorded in, if any.
	Pass     string
	Program  string
	Barriers gpu.BarrierBatch
	Bindings []gpu.Binding
	Render   gpu.RenderPassDesc
	Scissor  common.Rect
	Src      gpu.Buffer
	Dst      gpu.Buffer
	Offsets  [2]uint64
	Size     uint64
	Value    uint32
	Counts   [4]uint32
	Base     int32
}

// CommandList records commands into a slice.
type CommandList struct {
	label    string
	Slot     int
	Commands []Command

	pass    string
	program string
}

func (c *CommandList) Label() string { return c.label }

func (c *CommandList) record(cmd Command) {
	cmd.Pass = c.pass
	cmd.Program = c.program
	c.Commands = append(c.Commands, cmd)
}

func (c *CommandList) Barriers(batch gpu.BarrierBatch) {
	if batch.Empty() {
		return
	}
	c.record(Command{Op: OpBarriers, Barriers: batch})
}

func (c *CommandList) CopyBuffer(src, dst gpu.Buffer, srcOffset, dstOffset, size uint64) {
	c.record(Command{Op: OpCopyBuffer, Src: src, Dst: dst, Offsets: [2]uint64{srcOffset, dstOffset}, Size: size})
}

func (c *CommandList) FillBuffer(dst gpu.Buffer, offset, size uint64, value uint32) {
	c.record(Command{Op: OpFillBuffer, Dst: dst, Offsets: [2]uint64{offset}, Size: size, Value: value})
}

func (c *CommandList) BeginComputePass(label string) gpu.ComputePass {
	c.pass = label
	c.program = ""
	c.record(Command{Op: OpBeginCompute})
	return &pass{list: c}
}

func (c *CommandList) BeginRenderPass(desc gpu.RenderPassDesc) gpu.RenderPass {
	c.pass = desc.Label
	c.program = ""
	c.record(Command{Op: OpBeginRender, Render: desc})
	return &pass{list: c}
}

// Filter returns the recorded commands with the given op.
func (c *CommandList) Filter(op Op) []Command {
	var out []Command
	for _, cmd := range c.Commands {
		if cmd.Op == op {
			out = append(out, cmd)
		}
	}
	return out
}

// Passes returns the labels of the passes in record order.
func (c *CommandList) Passes() []string {
	var out []string
	for _, cmd := range c.Commands {
		if cmd.Op == OpBeginCompute || cmd.Op == OpBeginRender {
			out = append(out, cmd.Pass)
		}
	}
	return out
}

// pass implements both gpu.ComputePass and gpu.RenderPass.
type pass struct {
	list *CommandList
}

func (p *pass) SetProgram(prog gpu.Program) {
	p.list.program = prog.Label()
	p.list.record(Command{Op: OpSetProgram})
}

func (p *pass) SetBindings(bindings ...gpu.Binding) {
	p.list.record(Command{Op: OpSetBindings, Bindings: append([]gpu.Binding(nil), bindings...)})
}

func (p *pass) Dispatch(x, y, z uint32) {
	p.list.record(Command{Op: OpDispatch, Counts: [4]uint32{x, y, z}})
}

func (p *pass) SetIndexBuffer(buf gpu.Buffer, offset uint64) {
	p.list.record(Command{Op: OpSetIndexBuffer, Src: buf, Offsets: [2]uint64{offset}})
}

func (p *pass) SetScissor(r common.Rect) {
	p.list.record(Command{Op: OpSetScissor, Scissor: r})
}

func (p *pass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.list.record(Command{Op: OpDraw, Counts: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (p *pass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.list.record(Command{
		Op:     OpDrawIndexed,
		Counts: [4]uint32{indexCount, instanceCount, firstIndex, firstInstance},
		Base:   baseVertex,
	})
}

func (p *pass) DrawIndexedIndirectCount(args gpu.Buffer, argsOffset uint64, count gpu.Buffer, countOffset uint64, maxDraws uint32) {
	p.list.record(Command{
		Op:      OpDrawIndexedIndirectCount,
		Src:     args,
		Dst:     count,
		Offsets: [2]uint64{argsOffset, countOffset},
		Value:   maxDraws,
	})
}

func (p *pass) End() {
	p.list.record(Command{Op: OpEndPass})
	p.list.pass = ""
	p.list.program = ""
}
