package resumable

import (
	"fmt"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// Storage is a sparse collection of values, indexed by field. A missing
// entry holds nil.
type Storage struct {
	// This is private so that the data structure is allowed to switch
	// the in-memory representation dynamically.
	values []Value
}

// NewStorage creates a Storage.
func NewStorage(values []Value) Storage {
	return Storage{values: values}
}

// Has is true if a non-nil value is defined for a specific index.
func (v *Storage) Has(i int) bool {
	return i >= 0 && i < len(v.values) && v.values[i] != nil
}

// Get gets the value for a specific index.
func (v *Storage) Get(i int) Value {
	if !v.Has(i) {
		return nil
	}
	return v.values[i]
}

// Delete clears the value for a specific index.
func (v *Storage) Delete(i int) {
	if v.Has(i) {
		v.values[i] = nil
	}
}

// Set sets the value for a specific index.
func (v *Storage) Set(i int, value Value) {
	if n := i + 1; n > len(v.values) {
		v.values = slices.Grow(v.values, n-len(v.values))
		v.values = v.values[:n]
	}
	v.values[i] = value
}

// Len returns the size of the storage, including trailing nil entries.
func (v *Storage) Len() int { return len(v.values) }

func (v *Storage) shrink() {
	i := len(v.values) - 1
	for i >= 0 && v.values[i] == nil {
		i--
	}
	v.values = v.values[:i+1]
}

// Protobuf field numbers of the storage encoding.
const (
	storageSize  protowire.Number = 1
	storageEntry protowire.Number = 2

	entryIndex protowire.Number = 1
	entryValue protowire.Number = 2

	maxStorageSize = 1 << 20
)

// MarshalAppend appends the values to the provided buffer, in protobuf wire
// format.
func (v *Storage) MarshalAppend(b []byte) ([]byte, error) {
	v.shrink()

	// This is a sparse map. For each value we encode the value as well
	// as its index. The length of the data structure is encoded as a hint
	// for the deserializer so that it can preallocate the necessary space.
	b = protowire.AppendTag(b, storageSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(v.values)))

	for i, value := range v.values {
		if value == nil {
			continue
		}
		var entry []byte
		entry = protowire.AppendTag(entry, entryIndex, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(i))

		encoded, err := marshalValue(nil, value)
		if err != nil {
			return nil, fmt.Errorf("storage entry %d: %w", i, err)
		}
		entry = protowire.AppendTag(entry, entryValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, encoded)

		b = protowire.AppendTag(b, storageEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b, nil
}

// Unmarshal deserializes a Storage from the provided buffer, which must hold
// exactly one encoded storage.
func (v *Storage) Unmarshal(b []byte) error {
	var values []Value
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid storage: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == storageSize && typ == protowire.VarintType:
			size, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("invalid storage size: %w", protowire.ParseError(n))
			}
			b = b[n:]
			if size <= maxStorageSize && size > uint64(len(values)) {
				values = slices.Grow(values, int(size)-len(values))
			}

		case num == storageEntry && typ == protowire.BytesType:
			entry, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("invalid storage entry: %w", protowire.ParseError(n))
			}
			b = b[n:]
			index, value, err := unmarshalEntry(entry)
			if err != nil {
				return err
			}
			if index >= len(values) {
				values = slices.Grow(values, index+1-len(values))[:index+1]
			}
			values[index] = value

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("invalid storage: %w", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	v.values = values
	return nil
}

func unmarshalEntry(b []byte) (index int, value Value, err error) {
	index = -1
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, fmt.Errorf("invalid storage entry: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == entryIndex && typ == protowire.VarintType:
			i, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("invalid storage index: %w", protowire.ParseError(n))
			}
			b = b[n:]
			if i >= maxStorageSize {
				return 0, nil, fmt.Errorf("invalid storage index: %d", i)
			}
			index = int(i)

		case num == entryValue && typ == protowire.BytesType:
			encoded, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("invalid storage value: %w", protowire.ParseError(n))
			}
			b = b[n:]
			if value, err = unmarshalValue(encoded); err != nil {
				return 0, nil, err
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, nil, fmt.Errorf("invalid storage entry: %w", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if index < 0 {
		return 0, nil, fmt.Errorf("invalid storage entry: missing index")
	}
	return index, value, nil
}
