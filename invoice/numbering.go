package invoice

import (
	"fmt"

	"github.com/stafflink/billing-engine/billing"
)

// Number formats a deterministic, human-readable invoice number:
// INV-<year><month>-<sequence>, e.g. INV-202503-0007. The sequence is
// monotonically increasing within the (month, year) scope; the store
// advances it inside the generation transaction so concurrent generation
// cannot collide.
func Number(p billing.Period, seq int64) string {
	return fmt.Sprintf("INV-%04d%02d-%04d", p.Year, int(p.Month), seq)
}
