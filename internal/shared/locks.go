package shared

import (
	"fmt"
	"time"
)

// NightAuditLockKey builds redis keys guarding a single hotel business day.
func NightAuditLockKey(hotelID int64, auditDate time.Time) string {
	return fmt.Sprintf("folio:nightaudit:%d:%s:lock", hotelID, auditDate.Format("2006-01-02"))
}
