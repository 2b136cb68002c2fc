package shared

// Platform permissions. Role levels map onto these in the rbac module.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermIngredientsView = "ingredients.view"
	PermIngredientsEdit = "ingredients.edit"

	PermRecipesView = "recipes.view"
	PermRecipesEdit = "recipes.edit"

	PermInventoryView = "inventory.view"
	PermInventoryEdit = "inventory.edit"

	PermProductionEdit = "production.edit"
	PermStockView      = "stock.view"
	PermStockEdit      = "stock.edit"

	PermJournalView = "journal.view"
)

// CoreScopes lists all permissions known to the platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermIngredientsView,
		PermIngredientsEdit,
		PermRecipesView,
		PermRecipesEdit,
		PermInventoryView,
		PermInventoryEdit,
		PermProductionEdit,
		PermStockView,
		PermStockEdit,
		PermJournalView,
	}
}
