package rbac

import "github.com/gastromanager/gastromanager/internal/shared"

// Level is a staff access level. Levels are fixed; there is no role
// editing UI.
type Level string

const (
	LevelManager    Level = "manager"
	LevelService    Level = "service"
	LevelProduction Level = "production"
)

// ValidLevel reports whether the value is a known staff level.
func ValidLevel(l Level) bool {
	switch l {
	case LevelManager, LevelService, LevelProduction:
		return true
	}
	return false
}

// levelPermissions maps each staff level to the permissions it grants.
// Managers get every permission. Service staff handle the counter: stock
// views and takeouts. Production staff run the kitchen: inventory,
// recipes and production.
var levelPermissions = map[Level][]string{
	LevelManager: shared.CoreScopes(),
	LevelService: {
		shared.PermStockView,
		shared.PermStockEdit,
		shared.PermInventoryView,
	},
	LevelProduction: {
		shared.PermInventoryView,
		shared.PermInventoryEdit,
		shared.PermIngredientsView,
		shared.PermRecipesView,
		shared.PermProductionEdit,
		shared.PermStockView,
	},
}

// PermissionsForLevel returns the permission set granted by a level.
func PermissionsForLevel(l Level) []string {
	perms := levelPermissions[l]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
