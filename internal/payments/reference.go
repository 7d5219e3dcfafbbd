package payments

import (
	"strings"

	"github.com/google/uuid"
)

// ClientReference derives BK-<first 8 hex of reservation>-<first 4 hex of session>.
func ClientReference(reservationID, sessionID uuid.UUID) string {
	res := strings.ReplaceAll(reservationID.String(), "-", "")
	sess := strings.ReplaceAll(sessionID.String(), "-", "")
	return "BK-" + res[:8] + "-" + sess[:4]
}
