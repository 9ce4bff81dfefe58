package trend

import (
	"fmt"

	"github.com/okian/pulse/internal/domain/category"
)

// kv-tier key builders. Result and counts entries expire on their own;
// the sync pass additionally invalidates result entries by prefix after
// refreshing durable snapshots.
func resultKey(cat category.Category, limit int) string {
	return fmt.Sprintf("trending:%s:%d", cat, limit)
}

func resultPrefix(cat category.Category) string {
	return fmt.Sprintf("trending:%s:", cat)
}

func countsKey(cat category.Category, itemID string) string {
	return fmt.Sprintf("counts:%s:%s", cat, itemID)
}

func personalKey(userID string, limit int) string {
	return fmt.Sprintf("personal:%s:%d", userID, limit)
}
