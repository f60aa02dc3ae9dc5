package migration

import (
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
)

var migratedModels = []interface{}{
	&subscriptiondomain.Subscription{},
}
