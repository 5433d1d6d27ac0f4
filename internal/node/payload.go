package node

// DefaultPayloadCapacity is the size of the publish staging buffer.
const DefaultPayloadCapacity = 512

// PayloadBuffer is a fixed-capacity staging area for the next publish.
// The backing array is allocated once and never grows.
type PayloadBuffer struct {
	data   []byte
	cursor int
}

func NewPayloadBuffer(capacity int) *PayloadBuffer {
	if capacity <= 0 {
		capacity = DefaultPayloadCapacity
	}
	return &PayloadBuffer{data: make([]byte, capacity)}
}

// AppendLine copies line at the write cursor. If it does not fit, nothing
// is written and an *OverflowError is returned.
func (b *PayloadBuffer) AppendLine(line []byte) error {
	if len(line) > b.Remaining() {
		return &OverflowError{Need: len(line), Remaining: b.Remaining(), Capacity: len(b.data)}
	}
	b.cursor += copy(b.data[b.cursor:], line)
	return nil
}

// Bytes returns the filled part of the buffer. The slice aliases internal
// storage and is only valid until the next Reset or AppendLine.
func (b *PayloadBuffer) Bytes() []byte { return b.data[:b.cursor] }

func (b *PayloadBuffer) Len() int { return b.cursor }

func (b *PayloadBuffer) Cap() int { return len(b.data) }

func (b *PayloadBuffer) Remaining() int { return len(b.data) - b.cursor }

// Reset marks the buffer empty without releasing storage.
func (b *PayloadBuffer) Reset() { b.cursor = 0 }
