package booking

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

// GenerateToken builds the human-readable booking reference shown to the
// patient and the front desk: DOC-<doctor prefix>-<yyyymmdd>-<discriminator>.
// The 3-digit discriminator is random and unchecked, so the token is a
// display aid, not a uniqueness guarantee.
func GenerateToken(doctorID uuid.UUID, date schedule.Date) string {
	prefix := strings.ReplaceAll(doctorID.String(), "-", "")[:8]
	return fmt.Sprintf("DOC-%s-%s-%03d", prefix, date.Compact(), rand.Intn(1000))
}
