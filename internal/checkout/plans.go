package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/illegalcall/imaginify/internal/models"
)

// Plan is a purchasable credit package.
type Plan struct {
	ID      int             `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Credits int             `json:"credits"`
}

// Free reports whether the plan costs nothing.
func (p Plan) Free() bool {
	return p.Price.IsZero()
}

var Plans = []Plan{
	{ID: 1, Name: "Free", Price: decimal.Zero, Credits: 20},
	{ID: 2, Name: "Pro Package", Price: decimal.NewFromInt(40), Credits: 120},
	{ID: 3, Name: "Premium Package", Price: decimal.NewFromInt(199), Credits: 2000},
}

// LookupPlan resolves a purchasable plan by name.
func LookupPlan(name string) (Plan, error) {
	for _, p := range Plans {
		if p.Name == name {
			if p.Free() {
				return Plan{}, fmt.Errorf("%w: plan %q cannot be purchased", models.ErrInvalidInput, name)
			}
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("%w: unknown plan %q", models.ErrInvalidInput, name)
}
