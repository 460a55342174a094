package registry

import "github.com/uhyunpark/hyperswap/pkg/vm"

const registryABIJSON = `[
{"type":"function","name":"registerProxy","inputs":[],"outputs":[{"name":"proxy","type":"address"}]},
{"type":"function","name":"registerProxyFor","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"proxy","type":"address"}]},
{"type":"function","name":"proxies","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"contracts","stateMutability":"view","inputs":[{"name":"addr","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"pending","stateMutability":"view","inputs":[{"name":"addr","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"authDelay","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"grantInitialAuthentication","inputs":[{"name":"authAddress","type":"address"}],"outputs":[]},
{"type":"function","name":"startGrantAuthentication","inputs":[{"name":"addr","type":"address"}],"outputs":[]},
{"type":"function","name":"endGrantAuthentication","inputs":[{"name":"addr","type":"address"}],"outputs":[]},
{"type":"function","name":"revokeAuthentication","inputs":[{"name":"addr","type":"address"}],"outputs":[]},
{"type":"function","name":"transferOwnership","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]}
]`

const proxyABIJSON = `[
{"type":"function","name":"execute","inputs":[{"name":"dest","type":"address"},{"name":"howToCall","type":"uint8"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"setRevoke","inputs":[{"name":"revoke","type":"bool"}],"outputs":[]},
{"type":"function","name":"user","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"registry","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"revoked","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	RegistryABI = vm.MustParseABI(registryABIJSON)
	ProxyABI    = vm.MustParseABI(proxyABIJSON)

	// constructor arguments
	registryInit = vm.MustArguments("address", "uint256")
	proxyInit    = vm.MustArguments("address", "address")
)
