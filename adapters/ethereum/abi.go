package ethereum

import (
	"embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/artpar/tacoscan/ports"
)

//go:embed abi/*.json
var abiFS embed.FS

var abiFiles = map[ports.ContractKind]string{
	ports.FeeModel:         "abi/fee_model.json",
	ports.AccessController: "abi/access_controller.json",
	ports.FeeToken:         "abi/erc20.json",
	ports.Coordinator:      "abi/coordinator.json",
}

// LoadABIs parses the embedded contract ABIs.
func LoadABIs() (map[ports.ContractKind]*abi.ABI, error) {
	out := make(map[ports.ContractKind]*abi.ABI, len(abiFiles))
	for kind, path := range abiFiles {
		f, err := abiFS.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		parsed, err := abi.JSON(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out[kind] = &parsed
	}
	return out, nil
}
