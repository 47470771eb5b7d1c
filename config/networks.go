package config

// StacksChainConfig contains the API endpoint and USDC contract coordinates
// for one Stacks network.
type StacksChainConfig struct {
	APIURL           string
	USDCContractAddr string
	USDCContractName string
}

// DefaultChainConfig contains the default Stacks endpoints and contracts by
// network.
var DefaultChainConfig = map[string]StacksChainConfig{
	"mainnet": {
		APIURL:           "https://api.mainnet.hiro.so",
		USDCContractAddr: "SP3Y2ZSH8P7D50B0VBTSX11S7XSG24M1VB9YFQA4K",
		USDCContractName: "token-aeusdc",
	},
	"testnet": {
		APIURL:           "https://api.testnet.hiro.so",
		USDCContractAddr: "ST3Y2ZSH8P7D50B0VBTSX11S7XSG24M1VBAVYFQA4",
		USDCContractName: "token-aeusdc",
	},
}

// AvailableNetworks contains the list of supported Stacks networks.
var AvailableNetworks = []string{
	"mainnet",
	"testnet",
}
