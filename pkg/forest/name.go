package forest

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

// TreeName identifies one AMT in the forest. The root AMT is level 0;
// every other AMT is named by the depth-bit windows of the keys that
// overflowed into it, one window per level, concatenated
// most-significant-window-first into Path. Ported from
// original_source/amt-db/src/ver_tree/name.rs::TreeName, generalized from
// the original's fixed-128-bit Path (a u128) to arbitrary precision so a
// forest is not bounded to 128/depth levels.
type TreeName struct {
	Level uint8
	Path  *big.Int
}

// RootTreeName is the name of the level-0 AMT every key starts in.
func RootTreeName() TreeName {
	return TreeName{Level: 0, Path: big.NewInt(0)}
}

// TreeNameFromKey returns the name of the AMT a key lives in at the given
// level, by concatenating its first `level` depth-bit windows.
func TreeNameFromKey(key Key, level uint8, depth int) TreeName {
	path := big.NewInt(0)
	for l := uint8(0); l < level; l++ {
		path.Lsh(path, uint(depth))
		path.Or(path, big.NewInt(int64(key.IndexAtLevel(l, depth))))
	}
	return TreeName{Level: level, Path: path}
}

// Parent returns the name of the AMT one level up and the leaf index
// within it that this tree hangs off of, or ok=false if this is the root.
func (n TreeName) Parent(depth int) (parent TreeName, leafIndex uint32, ok bool) {
	if n.Level == 0 {
		return TreeName{}, 0, false
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(depth)), big.NewInt(1))
	leaf := new(big.Int).And(n.Path, mask)
	parentPath := new(big.Int).Rsh(n.Path, uint(depth))
	return TreeName{Level: n.Level - 1, Path: parentPath}, uint32(leaf.Uint64()), true
}

// Key returns a stable, comparable string for use as a map key — TreeName
// itself holds a *big.Int, which is not comparable with ==.
func (n TreeName) Key() string {
	return fmt.Sprintf("%d:%s", n.Level, n.Path.Text(16))
}

// String renders a TreeName for logs; not used for on-disk encoding.
func (n TreeName) String() string { return n.Key() }

// EncodeConsensus serializes a TreeName, ported from
// name.rs::TreeName::storage_encode: level 0 is a single zero byte;
// otherwise a leading level byte followed by the minimal big-endian
// encoding of Path (empty if Path is zero).
func (n TreeName) EncodeConsensus() []byte {
	if n.Level == 0 {
		return []byte{0}
	}
	out := make([]byte, 0, 1+len(n.Path.Bytes()))
	out = append(out, n.Level)
	out = append(out, n.Path.Bytes()...)
	return out
}

// DecodeTreeName parses bytes produced by EncodeConsensus.
func DecodeTreeName(data []byte) (TreeName, error) {
	if len(data) == 0 {
		return TreeName{}, errors.New("forest: empty tree name encoding")
	}
	if data[0] == 0 {
		return RootTreeName(), nil
	}
	path := new(big.Int).SetBytes(data[1:])
	return TreeName{Level: data[0], Path: path}, nil
}
