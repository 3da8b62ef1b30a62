package models

// ModelTypeRegistry lists every persisted model by name.
var ModelTypeRegistry = map[string]interface{}{
	"Building":        Building{},
	"Floor":           Floor{},
	"Apartment":       Apartment{},
	"Resident":        Resident{},
	"Contract":        Contract{},
	"ContractHistory": ContractHistory{},
}
