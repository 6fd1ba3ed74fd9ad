package types

import "fmt"

// AssetID identifies a fungible asset known to the asset registry.
type AssetID uint64

func (a AssetID) String() string {
	return fmt.Sprintf("%d", uint64(a))
}
