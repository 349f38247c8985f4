package assets

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

const spirvMagic = 0x07230203

// Asset is the content of a file together with its identity.
type Asset struct {
	Name string
	Type AssetType
	Data []byte
}

type Loader interface {
	Load(name string, data []byte) (*Asset, error)
}

// ShaderLoader accepts SPIR-V modules only.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(name string, data []byte) (*Asset, error) {
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, errors.Newf("shader %s: size %d is not a multiple of 4", name, len(data))
	}
	if binary.LittleEndian.Uint32(data) != spirvMagic {
		return nil, errors.Newf("shader %s: not a SPIR-V module", name)
	}
	return &Asset{Name: name, Type: AssetTypeShader, Data: data}, nil
}

type BinaryLoader struct{}

func (bl *BinaryLoader) Load(name string, data []byte) (*Asset, error) {
	return &Asset{Name: name, Type: determineAssetType(name), Data: data}, nil
}
