package fstree

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// EntryKind tags what a TreeEntry describes.
type EntryKind uint8

const (
	KindFile EntryKind = 0
	KindDir  EntryKind = 1
	KindLink EntryKind = 2
)

// TreeEntry is one directory entry: a file, subdirectory, or symlink,
// identified by the hash of its content (file bytes, symlink target
// bytes, or child tree blob, respectively).
type TreeEntry struct {
	Name string
	Kind EntryKind
	Mode uint32
	Size uint64
	Hash [32]byte
}

// EncodeMsgpack implements msgpack.CustomEncoder: a map with decimal-
// string keys "1".."5", per the wire contract.
func (e TreeEntry) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(5); err != nil {
		return err
	}
	pairs := []struct {
		key string
		val any
	}{
		{"1", e.Name},
		{"2", uint8(e.Kind)},
		{"3", e.Mode},
		{"4", e.Size},
		{"5", e.Hash[:]},
	}
	for _, p := range pairs {
		if err := enc.EncodeString(p.key); err != nil {
			return err
		}
		if err := enc.Encode(p.val); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack implements msgpack.CustomDecoder, accepting both integer
// and decimal-string keys for forward compatibility with other encoders.
func (e *TreeEntry) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		key, err := decodeKeyAsString(dec)
		if err != nil {
			return err
		}
		switch key {
		case "1":
			if e.Name, err = dec.DecodeString(); err != nil {
				return err
			}
		case "2":
			v, err := dec.DecodeUint64()
			if err != nil {
				return err
			}
			e.Kind = EntryKind(v)
		case "3":
			v, err := dec.DecodeUint64()
			if err != nil {
				return err
			}
			e.Mode = uint32(v)
		case "4":
			if e.Size, err = dec.DecodeUint64(); err != nil {
				return err
			}
		case "5":
			b, err := dec.DecodeBytes()
			if err != nil {
				return err
			}
			copy(e.Hash[:], b)
		default:
			if err := dec.Skip(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeKeyAsString(dec *msgpack.Decoder) (string, error) {
	key, err := dec.DecodeInterface()
	if err != nil {
		return "", err
	}
	switch v := key.(type) {
	case string:
		return v, nil
	case int8:
		return fmt.Sprintf("%d", v), nil
	case int16:
		return fmt.Sprintf("%d", v), nil
	case int32:
		return fmt.Sprintf("%d", v), nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case uint8:
		return fmt.Sprintf("%d", v), nil
	case uint16:
		return fmt.Sprintf("%d", v), nil
	case uint32:
		return fmt.Sprintf("%d", v), nil
	case uint64:
		return fmt.Sprintf("%d", v), nil
	default:
		return "", fmt.Errorf("tree entry key neither string nor int: %T", key)
	}
}

// EncodeTree sorts a copy of entries by name (byte-lexicographic) and
// serialises it as the array of maps the wire format requires.
func EncodeTree(entries []TreeEntry) ([]byte, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	b, err := msgpack.Marshal(sorted)
	if err != nil {
		return nil, newErr(KindMsgpack, "", err)
	}
	return b, nil
}

// DecodeTree parses a tree blob back into its entries.
func DecodeTree(blob []byte) ([]TreeEntry, error) {
	var entries []TreeEntry
	if err := msgpack.Unmarshal(blob, &entries); err != nil {
		return nil, newErr(KindMsgpack, "", err)
	}
	return entries, nil
}
