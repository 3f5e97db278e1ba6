package gpu

// PipelineStage is a bit set of pipeline stages a usage touches.
type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
)

// StageNone is the empty stage set.
const StageNone PipelineStage = 0

// Access is a bit set of memory accesses a usage performs.
type Access uint32

const (
	AccessIndirectCommandRead Access = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
)

// AccessNone is the empty access set.
const AccessNone Access = 0

const writeAccesses = AccessShaderWrite | AccessColorAttachmentWrite | AccessDepthStencilWrite | AccessTransferWrite

// IsWrite reports whether the set contains any write access.
func (a Access) IsWrite() bool {
	return a&writeAccesses != 0
}

// Layout is the image memory layout a usage requires.
type Layout uint8

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutShaderReadOnly
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

// AccessScope is the stage, access and layout triple a usage maps to.
type AccessScope struct {
	Stage  PipelineStage
	Access Access
	Layout Layout
}

// ImageUsage is the current usage state of an image. Every image carries one; it is updated
// each time a barrier is recorded against the image.
type ImageUsage uint8

const (
	ImageUsageNone ImageUsage = iota
	ImageUsageGraphicsShaderRead
	ImageUsageGraphicsShaderReadWrite
	ImageUsageComputeShaderRead
	ImageUsageComputeShaderReadWrite
	ImageUsageTransferDst
	ImageUsageTransferSrc
	ImageUsageColorAttachment
	ImageUsageDepthAttachment
	ImageUsagePresent
)

var imageUsageNames = [...]string{
	ImageUsageNone:                    "None",
	ImageUsageGraphicsShaderRead:      "GraphicsShaderRead",
	ImageUsageGraphicsShaderReadWrite: "GraphicsShaderReadWrite",
	ImageUsageComputeShaderRead:       "ComputeShaderRead",
	ImageUsageComputeShaderReadWrite:  "ComputeShaderReadWrite",
	ImageUsageTransferDst:             "TransferDst",
	ImageUsageTransferSrc:             "TransferSrc",
	ImageUsageColorAttachment:         "ColorAttachment",
	ImageUsageDepthAttachment:         "DepthAttachment",
	ImageUsagePresent:                 "Present",
}

func (u ImageUsage) String() string {
	if int(u) < len(imageUsageNames) {
		return imageUsageNames[u]
	}
	return "ImageUsage(?)"
}

var imageScopes = [...]AccessScope{
	ImageUsageNone:                    {StageTopOfPipe, AccessNone, LayoutUndefined},
	ImageUsageGraphicsShaderRead:      {StageVertexShader | StageFragmentShader, AccessShaderRead, LayoutShaderReadOnly},
	ImageUsageGraphicsShaderReadWrite: {StageVertexShader | StageFragmentShader, AccessShaderRead | AccessShaderWrite, LayoutGeneral},
	ImageUsageComputeShaderRead:       {StageComputeShader, AccessShaderRead, LayoutShaderReadOnly},
	ImageUsageComputeShaderReadWrite:  {StageComputeShader, AccessShaderRead | AccessShaderWrite, LayoutGeneral},
	ImageUsageTransferDst:             {StageTransfer, AccessTransferWrite, LayoutTransferDst},
	ImageUsageTransferSrc:             {StageTransfer, AccessTransferRead, LayoutTransferSrc},
	ImageUsageColorAttachment:         {StageColorAttachmentOutput, AccessColorAttachmentRead | AccessColorAttachmentWrite, LayoutColorAttachment},
	ImageUsageDepthAttachment:         {StageEarlyFragmentTests | StageLateFragmentTests, AccessDepthStencilRead | AccessDepthStencilWrite, LayoutDepthAttachment},
	ImageUsagePresent:                 {StageBottomOfPipe, AccessNone, LayoutPresent},
}

// Scope returns the stage, access and layout the usage maps to.
func (u ImageUsage) Scope() AccessScope {
	return imageScopes[u]
}

// IsWrite reports whether the usage writes the image.
func (u ImageUsage) IsWrite() bool {
	return imageScopes[u].Access.IsWrite()
}

// Capability returns the creation capability an image needs to be used this way.
func (u ImageUsage) Capability() ImageCapability {
	switch u {
	case ImageUsageGraphicsShaderRead, ImageUsageComputeShaderRead:
		return ImageCapSampled
	case ImageUsageGraphicsShaderReadWrite, ImageUsageComputeShaderReadWrite:
		return ImageCapStorage
	case ImageUsageTransferDst:
		return ImageCapTransferDst
	case ImageUsageTransferSrc:
		return ImageCapTransferSrc
	case ImageUsageColorAttachment:
		return ImageCapColorAttachment
	case ImageUsageDepthAttachment:
		return ImageCapDepthAttachment
	case ImageUsagePresent:
		return ImageCapPresent
	}
	return 0
}

// BufferUsage is the current usage state of a buffer.
type BufferUsage uint8

const (
	BufferUsageNone BufferUsage = iota
	BufferUsageGraphicsShaderRead
	BufferUsageGraphicsShaderReadWrite
	BufferUsageComputeShaderRead
	BufferUsageComputeShaderReadWrite
	BufferUsageTransferDst
	BufferUsageTransferSrc
	BufferUsageIndexBuffer
	BufferUsageVertexBuffer
	BufferUsageUniformBuffer
	BufferUsageIndirectBuffer
)

var bufferUsageNames = [...]string{
	BufferUsageNone:                    "None",
	BufferUsageGraphicsShaderRead:      "GraphicsShaderRead",
	BufferUsageGraphicsShaderReadWrite: "GraphicsShaderReadWrite",
	BufferUsageComputeShaderRead:       "ComputeShaderRead",
	BufferUsageComputeShaderReadWrite:  "ComputeShaderReadWrite",
	BufferUsageTransferDst:             "TransferDst",
	BufferUsageTransferSrc:             "TransferSrc",
	BufferUsageIndexBuffer:             "IndexBuffer",
	BufferUsageVertexBuffer:            "VertexBuffer",
	BufferUsageUniformBuffer:           "UniformBuffer",
	BufferUsageIndirectBuffer:          "IndirectBuffer",
}

func (u BufferUsage) String() string {
	if int(u) < len(bufferUsageNames) {
		return bufferUsageNames[u]
	}
	return "BufferUsage(?)"
}

var bufferScopes = [...]AccessScope{
	BufferUsageNone:                    {Stage: StageTopOfPipe},
	BufferUsageGraphicsShaderRead:      {Stage: StageVertexShader | StageFragmentShader, Access: AccessShaderRead},
	BufferUsageGraphicsShaderReadWrite: {Stage: StageVertexShader | StageFragmentShader, Access: AccessShaderRead | AccessShaderWrite},
	BufferUsageComputeShaderRead:       {Stage: StageComputeShader, Access: AccessShaderRead},
	BufferUsageComputeShaderReadWrite:  {Stage: StageComputeShader, Access: AccessShaderRead | AccessShaderWrite},
	BufferUsageTransferDst:             {Stage: StageTransfer, Access: AccessTransferWrite},
	BufferUsageTransferSrc:             {Stage: StageTransfer, Access: AccessTransferRead},
	BufferUsageIndexBuffer:             {Stage: StageVertexInput, Access: AccessIndexRead},
	BufferUsageVertexBuffer:            {Stage: StageVertexInput, Access: AccessVertexAttributeRead},
	BufferUsageUniformBuffer:           {Stage: StageVertexShader | StageFragmentShader | StageComputeShader, Access: AccessUniformRead},
	BufferUsageIndirectBuffer:          {Stage: StageDrawIndirect, Access: AccessIndirectCommandRead},
}

// Scope returns the stage and access the usage maps to. Buffers have no layout.
func (u BufferUsage) Scope() AccessScope {
	return bufferScopes[u]
}

// IsWrite reports whether the usage writes the buffer.
func (u BufferUsage) IsWrite() bool {
	return bufferScopes[u].Access.IsWrite()
}

// Capability returns the creation capability a buffer needs to be used this way.
func (u BufferUsage) Capability() BufferCapability {
	switch u {
	case BufferUsageGraphicsShaderRead, BufferUsageGraphicsShaderReadWrite,
		BufferUsageComputeShaderRead, BufferUsageComputeShaderReadWrite:
		return BufferCapStorage
	case BufferUsageTransferDst:
		return BufferCapTransferDst
	case BufferUsageTransferSrc:
		return BufferCapTransferSrc
	case BufferUsageIndexBuffer:
		return BufferCapIndex
	case BufferUsageVertexBuffer:
		return BufferCapVertex
	case BufferUsageUniformBuffer:
		return BufferCapUniform
	case BufferUsageIndirectBuffer:
		return BufferCapIndirect
	}
	return 0
}
