package interfaces

import "github.com/akylbek/payment-system/pg-orchestrator/internal/config"

// ProviderRegistry selects and looks up configured payment gateways.
type ProviderRegistry interface {
	Select() (config.Provider, error)
	GetByName(name string) (config.Provider, bool)
	All() []config.Provider
}
